package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a response contains no JSON object.
var ErrNoJSON = errors.New("llm: no json object in response")

// ExtractJSON returns the first complete JSON object embedded in text.
// Markdown fences and surrounding prose are ignored.
func ExtractJSON(text string) ([]byte, error) {
	for i := strings.IndexByte(text, '{'); i >= 0; {
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil && len(raw) > 0 && raw[0] == '{' {
			return bytes.Clone(raw), nil
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, ErrNoJSON
}

// decodeGuess parses a provider response into a guess.
func decodeGuess(text string) (CategoryGuess, error) {
	var out CategoryGuess
	raw, err := ExtractJSON(text)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return CategoryGuess{}, err
	}
	out.CategoryID = strings.TrimSpace(out.CategoryID)
	out.Confidence = clamp01(out.Confidence)
	if out.CategoryID == "" {
		return CategoryGuess{}, ErrNoGuess
	}
	return out, nil
}
