package phrase

import (
	"sort"
	"strings"

	"github.com/hanziloop/core/internal/models"
)

// buildRecord turns one validated generation item into a persistable
// record, deriving char_set, char_occurrences and include_chars_present
// so the stored invariants hold by construction.
func buildRecord(item GeneratedPhrase, req CanonicalPhraseRequest, batchID string) *models.PhraseModel {
	text := strings.TrimSpace(item.Text)
	runes := []rune(text)

	occurrences := models.IndexListMap{}
	for i, r := range runes {
		c := string(r)
		occurrences[c] = append(occurrences[c], i)
	}

	present := make(models.StringArray, 0, len(req.IncludeChars))
	for _, c := range req.IncludeChars {
		if strings.Contains(text, c) {
			present = append(present, c)
		}
	}

	var topics models.StringArray
	if req.Topic != "" {
		topics = models.StringArray{req.Topic}
	}

	rec := &models.PhraseModel{
		BatchID:             batchID,
		Text:                text,
		Translation:         item.Translation,
		PinyinMarked:        item.PinyinMarked,
		PinyinNumbered:      item.PinyinNumbered,
		LevelSystem:         req.LevelSystem,
		LevelValue:          req.LevelValue,
		LevelConfidence:     item.LevelConfidence,
		Type:                req.Type,
		Topics:              topics,
		Length:              len(runes),
		CharSet:             models.StringArray(uniqueSortedChars(text)),
		CharOccurrences:     occurrences,
		IncludeCharsPresent: present,
		Provenance: models.RequestProvenance{
			LevelSystem:  req.LevelSystem,
			LevelValue:   req.LevelValue,
			Type:         req.Type,
			Topic:        req.Topic,
			IncludeChars: models.StringArray(req.IncludeChars),
			Count:        req.Count,
			MaxLen:       req.MaxLen,
		},
	}
	rec.Quality = ComputeQuality(rec)
	return rec
}

// uniqueSortedChars returns the deduplicated, sorted character set of text.
func uniqueSortedChars(text string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(text)/3)
	for _, r := range text {
		c := string(r)
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
