package processing

import (
	"os"
	"path/filepath"
	"testing"
)

const validPipeline = `
pipeline:
  - name: ping
    type: http
    method: GET
    url: http://localhost/ping
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func setupDiscoverTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "smoke.pipeline.yaml"), validPipeline)
	writeFile(t, filepath.Join(root, "auth", "login.pipeline.json"), `{"pipeline": []}`)
	writeFile(t, filepath.Join(root, "auth", "admin", "roles.pipeline.yml"), validPipeline)
	writeFile(t, filepath.Join(root, "auth", "notes.yaml"), "not: a pipeline")
	if err := os.MkdirAll(filepath.Join(root, "dir.pipeline.yaml"), 0750); err != nil {
		t.Fatal(err)
	}

	return root
}

func TestDiscoverPipelines_DefaultPattern(t *testing.T) {
	root := setupDiscoverTree(t)

	files, err := DiscoverPipelines(root, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		filepath.Join(root, "smoke.pipeline.yaml"),
		filepath.Join(root, "auth", "login.pipeline.json"),
		filepath.Join(root, "auth", "admin", "roles.pipeline.yml"),
	}
	if len(files) != len(want) {
		t.Fatalf("expected %d files, got %d: %v", len(want), len(files), files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestDiscoverPipelines_CustomPattern(t *testing.T) {
	root := setupDiscoverTree(t)

	files, err := DiscoverPipelines(root, "auth/*.pipeline.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 || files[0] != filepath.Join(root, "auth", "login.pipeline.json") {
		t.Fatalf("unexpected files: %v", files)
	}
}

func TestDiscoverPipelines_NoPipelines(t *testing.T) {
	files, err := DiscoverPipelines(t.TempDir(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected 0 files, got %d", len(files))
	}
}

func TestDiscoverPipelines_InvalidPattern(t *testing.T) {
	if _, err := DiscoverPipelines(t.TempDir(), "[unclosed"); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestPathDepth(t *testing.T) {
	tests := []struct {
		path string
		want int
	}{
		{".", 0},
		{"a", 1},
		{"a/b", 2},
		{"a/b/c", 3},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := pathDepth(tt.path)
			if got != tt.want {
				t.Errorf("pathDepth(%q) = %d, want %d", tt.path, got, tt.want)
			}
		})
	}
}
