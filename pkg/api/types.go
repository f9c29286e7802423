package api

const (
	KindRequest = "http"
	KindScript  = "js"

	// ScriptStoreBinding is the name under which scripts see the result store.
	ScriptStoreBinding = "sessionStore"
)

// ValidMethods is the verb set accepted for request steps, in display order.
var ValidMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// Pipeline is the normalized form of a pipeline document.
type Pipeline struct {
	Steps []Step

	// Top-level keys of the document other than "pipeline", passed through untouched.
	Extra map[string]any

	// Set by ReadDefinition callers, not from the document.
	FilePath string
}

// Step is a fully defaulted step definition.
type Step struct {
	Name string
	Kind string

	// Request steps.
	Method             string
	URL                string
	Body               any
	Headers            map[string]string
	ContentType        string
	AllowSelfSignedSSL bool

	// Script steps.
	Code string

	// Alias is the secondary store key from onSuccess.store.alias.
	Alias           string
	ContinueOnError bool
}

// IsRequest reports whether the step issues an outbound request.
func (s Step) IsRequest() bool { return s.Kind == KindRequest }

// IsScript reports whether the step evaluates inline script code.
func (s Step) IsScript() bool { return s.Kind == KindScript }

// Names returns the step names in declaration order.
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		names = append(names, s.Name)
	}
	return names
}
