package api

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Parse validates a decoded pipeline document and returns its normalized form.
// The raw value is never modified.
func Parse(raw any) (*Pipeline, error) {
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, newValidationError(-1, "", ErrNotAnObject.Error(), ErrNotAnObject)
	}

	list, ok := stepList(doc["pipeline"])
	if !ok {
		return nil, newValidationError(-1, "", ErrMissingPipeline.Error(), ErrMissingPipeline)
	}

	p := &Pipeline{
		Steps: make([]Step, 0, len(list)),
		Extra: make(map[string]any, len(doc)),
	}
	for k, v := range doc {
		if k != "pipeline" {
			p.Extra[k] = v
		}
	}

	names := make(map[string]int, len(list))

	for i, item := range list {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, newValidationError(i, "", ErrInvalidStep.Error(), ErrInvalidStep)
		}

		name, _ := fields["name"].(string)
		if name == "" {
			return nil, newValidationError(i, "", ErrMissingName.Error(), ErrMissingName)
		}
		if prev, exists := names[name]; exists {
			return nil, newValidationError(i, "",
				fmt.Sprintf("duplicate step name %q (first defined at step %d)", name, prev), ErrDuplicateName)
		}
		names[name] = i

		step, err := normalizeStep(name, fields)
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, step)
	}

	return p, nil
}

// stepList accepts the decoder's []any as well as a typed list built in Go.
func stepList(raw any) ([]any, bool) {
	switch list := raw.(type) {
	case []any:
		return list, true
	case []map[string]any:
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = item
		}
		return out, true
	default:
		return nil, false
	}
}

func normalizeStep(name string, fields map[string]any) (Step, error) {
	step := Step{
		Name:    name,
		Kind:    KindRequest,
		Headers: map[string]string{},
	}
	if t, _ := fields["type"].(string); t == KindScript {
		step.Kind = KindScript
	}

	var err error
	if step.ContinueOnError, err = optionalBool(name, fields, "continueOnError", ErrInvalidContinueOnError); err != nil {
		return Step{}, err
	}
	if step.Alias, err = successAlias(name, fields); err != nil {
		return Step{}, err
	}

	if step.IsScript() {
		step.Code, err = scriptCode(name, fields["code"])
		return step, err
	}

	if err := normalizeRequest(&step, fields); err != nil {
		return Step{}, err
	}
	return step, nil
}

func normalizeRequest(step *Step, fields map[string]any) error {
	method, _ := fields["method"].(string)
	if method == "" {
		return newValidationError(-1, step.Name, ErrMissingMethod.Error(), ErrMissingMethod)
	}
	step.Method = strings.ToUpper(method)
	if !slices.Contains(ValidMethods, step.Method) {
		return newValidationError(-1, step.Name,
			fmt.Sprintf("invalid method %q (valid: %s)", method, strings.Join(ValidMethods, ", ")), ErrInvalidMethod)
	}

	step.URL, _ = fields["url"].(string)
	if step.URL == "" {
		return newValidationError(-1, step.Name, ErrMissingURL.Error(), ErrMissingURL)
	}

	step.Body = copyValue(fields["body"])

	switch headers := fields["headers"].(type) {
	case nil:
	case map[string]string:
		maps.Copy(step.Headers, headers)
	case map[string]any:
		for k, v := range headers {
			s, ok := v.(string)
			if !ok {
				return invalidField(step.Name, "headers", fmt.Sprintf("value for %q must be a string", k))
			}
			step.Headers[k] = s
		}
	default:
		return invalidField(step.Name, "headers", "must be a mapping of strings")
	}

	if raw, ok := fields["contentType"]; ok && raw != nil {
		ct, ok := raw.(string)
		if !ok {
			return invalidField(step.Name, "contentType", "must be a string")
		}
		step.ContentType = ct
	}

	var err error
	step.AllowSelfSignedSSL, err = optionalBool(step.Name, fields, "allowSelfSignedSSL", ErrInvalidField)
	return err
}

func scriptCode(name string, raw any) (string, error) {
	switch code := raw.(type) {
	case string:
		return code, nil
	case []any:
		lines := make([]string, 0, len(code))
		for _, line := range code {
			s, ok := line.(string)
			if !ok {
				return "", newValidationError(-1, name, ErrMissingCode.Error(), ErrMissingCode)
			}
			lines = append(lines, s)
		}
		return strings.Join(lines, "\n"), nil
	default:
		return "", newValidationError(-1, name, ErrMissingCode.Error(), ErrMissingCode)
	}
}

// successAlias extracts onSuccess.store.alias. Missing levels mean no alias.
func successAlias(name string, fields map[string]any) (string, error) {
	onSuccess, ok := fields["onSuccess"].(map[string]any)
	if !ok {
		return "", nil
	}
	store, ok := onSuccess["store"].(map[string]any)
	if !ok {
		return "", nil
	}
	raw, ok := store["alias"]
	if !ok || raw == nil {
		return "", nil
	}
	alias, ok := raw.(string)
	if !ok {
		return "", invalidField(name, "onSuccess.store.alias", "must be a string")
	}
	return alias, nil
}

func optionalBool(name string, fields map[string]any, key string, sentinel error) (bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, newValidationError(-1, name, fmt.Sprintf("%q must be a boolean, got %T", key, raw), sentinel)
	}
	return b, nil
}

func invalidField(step, field, message string) error {
	return newValidationError(-1, step, fmt.Sprintf("%s %s", field, message), ErrInvalidField)
}

// copyValue deep-copies maps and slices so the normalized pipeline shares
// nothing mutable with the caller's document.
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = copyValue(val)
		}
		return out
	case map[string]string:
		return maps.Clone(t)
	default:
		return v
	}
}
