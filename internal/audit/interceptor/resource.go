package interceptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// resourceField names one identifier in each place a request may carry it.
type resourceField struct {
	param string
	keys  []string
}

var (
	evidenceField = resourceField{param: "evidenceId", keys: []string{"evidenceId", "evidence_id"}}
	caseField     = resourceField{param: "caseId", keys: []string{"caseId", "case_id"}}
)

// resolve looks for the identifier in the route parameter, then the decoded
// request body, then the query string. It returns "" when none carries it.
func (f resourceField) resolve(param string, body map[string]any, query url.Values) string {
	if v := strings.TrimSpace(param); v != "" {
		return v
	}
	if v := f.fromMap(body); v != "" {
		return v
	}
	for _, k := range f.keys {
		if v := strings.TrimSpace(query.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// fromResponse finds the identifier in a JSON response payload, either at
// the top level or under "data".
func (f resourceField) fromResponse(payload map[string]any) string {
	if v := f.fromMap(payload); v != "" {
		return v
	}
	if data, ok := payload["data"].(map[string]any); ok {
		return f.fromMap(data)
	}
	return ""
}

func (f resourceField) fromMap(m map[string]any) string {
	for _, k := range f.keys {
		if v := scalarString(m[k]); v != "" {
			return v
		}
	}
	return ""
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64, int, int64:
		return fmt.Sprint(val)
	default:
		return ""
	}
}

// decodeObject decodes a JSON object, keeping numbers exact. Anything else
// yields nil.
func decodeObject(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return out
}
