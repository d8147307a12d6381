package pagecontext

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"piifinder/internal/domain"
)

// CharEstimator approximates tokens as one per four characters.
type CharEstimator struct{}

// CountText implements domain.TokenCounter.
func (CharEstimator) CountText(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// Serialize renders doc as compact JSON without HTML escaping, the form the
// prompt embeds and the estimate measures.
func Serialize(doc *domain.PageContextDocument) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// EstimateTokens measures doc with counter; a nil counter uses CharEstimator.
func EstimateTokens(doc *domain.PageContextDocument, counter domain.TokenCounter) int {
	if counter == nil {
		counter = CharEstimator{}
	}
	s, err := Serialize(doc)
	if err != nil {
		return 0
	}
	return counter.CountText(s)
}
