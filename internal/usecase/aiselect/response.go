package aiselect

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"piifinder/internal/domain"
)

// answerSchema is the shape the model is asked to return. Confidence is not
// range-checked here; out-of-range values are clamped instead of discarding
// an otherwise usable answer.
const answerSchema = `{
  "type": "object",
  "required": ["selector"],
  "properties": {
    "selector": {"type": "string", "minLength": 1},
    "confidence": {"type": "number"},
    "reasoning": {"type": "string"},
    "alternates": {"type": "array", "items": {"type": "string"}},
    "pattern_detected": {"type": "string"}
  }
}`

var compiledAnswerSchema = func() *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile([]byte(answerSchema))
	if err != nil {
		panic(fmt.Sprintf("aiselect: compile answer schema: %v", err))
	}
	return schema
}()

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// stripCodeFences removes markdown code fences if the model wrapped its output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ParseAnswer decodes and validates the model's reply.
func ParseAnswer(text string) (*domain.AIAnswer, error) {
	raw := stripCodeFences(text)
	if raw == "" {
		return nil, domain.ErrEmptyResponse
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if result := compiledAnswerSchema.Validate(parsed); !result.IsValid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrMalformedResponse, result.Error())
	}

	var answer domain.AIAnswer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	answer.Selector = strings.TrimSpace(answer.Selector)
	return &answer, nil
}
