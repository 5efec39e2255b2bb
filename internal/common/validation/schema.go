package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema is the subset of JSON Schema used to describe action parameters.
type JSONSchema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Pattern     *string  `json:"pattern,omitempty"`
	MinLength   *int     `json:"minLength,omitempty"`
	MaxLength   *int     `json:"maxLength,omitempty"`
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error joins the field errors into one operator-readable line.
func (r *ValidationResult) Error() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

const (
	idPattern    = `^[A-Za-z0-9_-]+$`
	tokenPattern = `^[0-9a-fA-F-]{36}$`
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

var (
	caseIDProp = Property{
		Type:        "string",
		Description: "case identifier",
		Pattern:     strPtr(idPattern),
		MinLength:   intPtr(1),
		MaxLength:   intPtr(64),
	}
	roundIDProp = Property{
		Type:        "string",
		Description: "broadcast round identifier",
		Pattern:     strPtr(tokenPattern),
	}
	tokenProp = Property{
		Type:        "string",
		Description: "single-use response token",
		Pattern:     strPtr(tokenPattern),
	}
)

// ActionSchemas lists the query parameters each action accepts. "action" and
// "callback" are accepted by every action; an unusable callback is dropped by
// the responder (IsSafeCallback) rather than rejected here.
var ActionSchemas = map[string]JSONSchema{
	"getBroadcastTargets":  paramsSchema(map[string]Property{"caseId": caseIDProp}, "caseId"),
	"getBroadcastPreview":  paramsSchema(map[string]Property{"caseId": caseIDProp}, "caseId"),
	"sendBroadcast":        paramsSchema(map[string]Property{"caseId": caseIDProp}, "caseId"),
	"getAppliedFranchises": paramsSchema(map[string]Property{"caseId": caseIDProp}, "caseId"),
	"getBroadcastRounds":   paramsSchema(map[string]Property{"caseId": caseIDProp}, "caseId"),
	"exportBroadcastRound": paramsSchema(map[string]Property{"roundId": roundIDProp}, "roundId"),
	"broadcast_apply":      paramsSchema(map[string]Property{"token": tokenProp, "roundId": roundIDProp}, "token", "roundId"),
	"broadcast_interest":   paramsSchema(map[string]Property{"token": tokenProp}, "token"),
}

func paramsSchema(props map[string]Property, required ...string) JSONSchema {
	all := map[string]Property{
		"action":   {Type: "string"},
		"callback": {Type: "string"},
	}
	for k, v := range props {
		all[k] = v
	}
	return JSONSchema{
		Type:                 "object",
		Properties:           all,
		Required:             required,
		AdditionalProperties: true,
	}
}

// ValidateParams checks params against the schema registered for action.
// Unknown actions return an error; callers resolve the action first.
func ValidateParams(action string, params map[string]interface{}) (*ValidationResult, error) {
	schema, ok := ActionSchemas[action]
	if !ok {
		return nil, fmt.Errorf("no schema for action %q", action)
	}
	return ValidateInput(params, schema)
}

// ValidateInput validates input against schema with gojsonschema.
func ValidateInput(input map[string]interface{}, schema JSONSchema) (*ValidationResult, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(input))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "(root)" {
			if f, ok := desc.Details()["property"].(string); ok {
				field = f
			}
		}
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	sort.Slice(out.Errors, func(i, j int) bool { return out.Errors[i].Field < out.Errors[j].Field })
	return out, nil
}

// QueryToMap flattens url.Values-style input, keeping the first value per key.
func QueryToMap(values map[string][]string) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// IsSafeCallback reports whether name is usable as a JSONP callback.
func IsSafeCallback(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '$':
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case i > 0 && (r == '.' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}
