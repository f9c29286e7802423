package processing

import (
	"fmt"
	"maps"
	"os"

	"github.com/systemstart/pipecall/pkg/api"
)

// LoadSeedFile reads a YAML (or JSON) mapping of store entries to preload
// before a run, such as credentials referenced as {{env.token}}. An empty
// file yields an empty mapping.
func LoadSeedFile(filename string) (map[string]any, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading seed file %s: %w", filename, err)
	}

	raw, err := api.DecodeDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", filename, err)
	}

	switch seed := raw.(type) {
	case nil:
		return make(map[string]any), nil
	case map[string]any:
		return seed, nil
	default:
		return nil, fmt.Errorf("seed file %s: top level must be a mapping of store keys, got %T", filename, raw)
	}
}

// Seed writes values into the store. Existing keys are overwritten.
func (r *Runner) Seed(values map[string]any) {
	maps.Copy(r.store.Map(), values)
}
