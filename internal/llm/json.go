package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON unmarshals a JSON object or array embedded in an LLM response,
// tolerating surrounding prose and markdown fences.
func ParseJSON[T any](response string) (T, error) {
	var zero T

	objStart := strings.Index(response, "{")
	arrStart := strings.Index(response, "[")

	start := objStart
	opener, closer := "{", "}"
	if start == -1 || (arrStart != -1 && arrStart < objStart) {
		start = arrStart
		opener, closer = "[", "]"
	}
	if start == -1 {
		return zero, fmt.Errorf("no JSON found in response")
	}

	end := strings.LastIndex(response, closer)
	if end <= start {
		return zero, fmt.Errorf("unterminated JSON %s in response", opener)
	}

	var result T
	if err := json.Unmarshal([]byte(response[start:end+1]), &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}
