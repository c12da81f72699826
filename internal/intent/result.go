package intent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Result is the structured intent emitted by the grump-intent compiler.
// The wire contract requires a non-empty "raw" string and an array-typed
// "actors" field; everything else is optional enrichment.
type Result struct {
	Raw            string          `json:"raw"`
	Actors         []string        `json:"actors"`
	Features       []string        `json:"features,omitempty"`
	DataFlows      []string        `json:"data_flows,omitempty"`
	TechStackHints []string        `json:"tech_stack_hints,omitempty"`
	Constraints    json.RawMessage `json:"constraints,omitempty"`
}

// decodeResult parses compiler stdout and enforces the output contract.
// Any shape violation is a MalformedOutputError, distinct from process-level
// failures.
func decodeResult(stdout []byte) (*Result, error) {
	var res Result
	if err := json.Unmarshal(stdout, &res); err != nil {
		return nil, &MalformedOutputError{
			Reason: fmt.Sprintf("output is not valid JSON (%d bytes)", len(stdout)),
			Err:    err,
		}
	}
	if strings.TrimSpace(res.Raw) == "" {
		return nil, &MalformedOutputError{Reason: `missing or empty "raw" field`}
	}
	if res.Actors == nil {
		return nil, &MalformedOutputError{Reason: `missing "actors" array`}
	}
	return &res, nil
}
