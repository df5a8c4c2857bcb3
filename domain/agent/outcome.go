package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Status is the business result of one extraction.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusReject  Status = "reject"
)

// Messages stored for non-success outcomes.
const (
	MessageEmptyResponse = "Empty response from extraction agent"
	MessageRejected      = "No real estate advertisement found"
)

// Outcome is what the agent concluded about one text. Unexpected failures are
// returned as errors by Extract instead.
type Outcome struct {
	Status  Status
	Records []Record
	Message string
	// ParseErr is set when the response could not be parsed.
	ParseErr error
	// Raw is the model's unmodified answer.
	Raw string
}

// OutputData is the value persisted as the job's output: the record list on
// success, {"message": ...} otherwise.
func (o Outcome) OutputData() any {
	if o.Status == StatusSuccess {
		if o.Records == nil {
			return []Record{}
		}
		return o.Records
	}
	return map[string]string{"message": o.Message}
}

const responseSchema = `{
  "type": "array",
  "items": {"type": "object"}
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.json", strings.NewReader(responseSchema)); err != nil {
		panic(fmt.Sprintf("add response schema: %v", err))
	}
	return compiler.MustCompile("response.json")
}

// Interpret turns a raw model answer into an Outcome.
func Interpret(raw, text string) Outcome {
	trimmed := strings.TrimSpace(raw)

	if trimmed == "" {
		return Outcome{Status: StatusFailed, Message: MessageEmptyResponse, Raw: raw}
	}
	if isReject(trimmed) {
		return Outcome{Status: StatusReject, Message: MessageRejected, Raw: raw}
	}

	records, err := parseRecords(stripCodeFence(trimmed), text)
	if err != nil {
		return Outcome{
			Status:   StatusFailed,
			Message:  "Failed to parse extraction response: " + err.Error(),
			ParseErr: err,
			Raw:      raw,
		}
	}
	return Outcome{Status: StatusSuccess, Records: records, Raw: raw}
}

func isReject(s string) bool {
	s = strings.TrimSuffix(s, ".")
	return strings.EqualFold(strings.TrimSpace(s), rejectToken)
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func parseRecords(body, text string) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON: unexpected data after top-level value")
	}
	if err := compiledSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("expected an array of objects: %w", err)
	}

	items := v.([]any)
	records := make([]Record, 0, len(items))
	for _, item := range items {
		records = append(records, mapRecord(item.(map[string]any), text))
	}
	return records, nil
}
