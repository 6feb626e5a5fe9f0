package phrase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// phrasePayload is the JSON shape the prompt demands back.
type phrasePayload struct {
	Phrases []GeneratedPhrase `json:"phrases"`
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// jsonExtractor names one strategy for pulling a decodable JSON
// document out of an unstructured model response.
type jsonExtractor struct {
	name string
	fn   func(string) []string
}

// extractors run in order: direct decode, fenced code block, last
// balanced {...} span, first balanced span. The first candidate that
// decodes wins; "almost valid" input never panics, it just moves on.
var extractors = []jsonExtractor{
	{"direct", func(raw string) []string {
		return []string{strings.TrimSpace(raw)}
	}},
	{"fenced-block", func(raw string) []string {
		var out []string
		for _, m := range fencedBlockRe.FindAllStringSubmatch(raw, -1) {
			out = append(out, strings.TrimSpace(m[1]))
		}
		return out
	}},
	{"last-balanced", func(raw string) []string {
		spans := balancedSpans(raw)
		if len(spans) == 0 {
			return nil
		}
		return []string{spans[len(spans)-1]}
	}},
	{"first-balanced", func(raw string) []string {
		spans := balancedSpans(raw)
		if len(spans) == 0 {
			return nil
		}
		return []string{spans[0]}
	}},
}

// parseGenerationResponse runs the extractor chain over a raw model
// response and decodes the first candidate that is valid JSON with at
// least one item.
func parseGenerationResponse(raw string) (*phrasePayload, error) {
	for _, ex := range extractors {
		for _, candidate := range ex.fn(raw) {
			if candidate == "" {
				continue
			}
			var payload phrasePayload
			if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
				continue
			}
			if len(payload.Phrases) == 0 {
				continue
			}
			return &payload, nil
		}
	}
	return nil, fmt.Errorf("no decodable JSON found in generation response")
}

// balancedSpans returns every top-level balanced {...} span, scanning
// with brace depth and skipping braces inside JSON strings.
func balancedSpans(s string) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					spans = append(spans, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return spans
}

// checkItemStructure enforces the structural contract on one returned
// item. A wrong or missing length is derivable, so it is corrected from
// the actual character count instead of rejected; anything else
// malformed fails the item.
func checkItemStructure(item *GeneratedPhrase) error {
	text := strings.TrimSpace(item.Text)
	if text == "" {
		return fmt.Errorf("empty phrase text")
	}
	if strings.TrimSpace(item.Translation) == "" {
		return fmt.Errorf("missing translation")
	}
	if strings.TrimSpace(item.PinyinMarked) == "" || strings.TrimSpace(item.PinyinNumbered) == "" {
		return fmt.Errorf("missing pronunciation encoding")
	}
	if item.LevelConfidence < 0 || item.LevelConfidence > 1 {
		return fmt.Errorf("level confidence %v outside [0,1]", item.LevelConfidence)
	}

	marked := strings.Fields(item.PinyinMarked)
	numbered := strings.Fields(item.PinyinNumbered)
	if len(marked) != len(numbered) {
		return fmt.Errorf("pronunciation encodings disagree: %d vs %d units", len(marked), len(numbered))
	}

	if actual := len([]rune(text)); item.Length != actual {
		item.Length = actual
	}
	item.Text = text
	return nil
}
