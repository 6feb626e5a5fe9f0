package phrase

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	maxCount  = 50
	maxMaxLen = 50
)

type levelRange struct {
	min, max int
}

var levelRanges = map[string]levelRange{
	LevelSystemHSK:        {1, 6},
	LevelSystemDifficulty: {1, 10},
	LevelSystemGrade:      {1, 9},
}

// defaultMaxLen per phrase type, applied when the caller omits max_len.
var defaultMaxLen = map[string]int{
	TypePhrase:   6,
	TypeSentence: 15,
	TypeIdiom:    4,
}

// Normalize turns loosely-typed caller input into a canonical request.
// Pure and deterministic: equivalent raw input (including reordered
// include_chars) always yields the same canonical form and cache key.
func Normalize(raw RawPhraseRequest) (CanonicalPhraseRequest, error) {
	var req CanonicalPhraseRequest

	system := strings.ToLower(strings.TrimSpace(raw.LevelSystem))
	bounds, ok := levelRanges[system]
	if !ok {
		return req, fmt.Errorf("%w: unknown level system %q", ErrInvalidLevel, raw.LevelSystem)
	}
	value, err := coerceLevelValue(raw.LevelValue)
	if err != nil {
		return req, err
	}
	if value < bounds.min || value > bounds.max {
		return req, fmt.Errorf("%w: %s accepts %d..%d, got %d", ErrInvalidLevel, system, bounds.min, bounds.max, value)
	}

	phraseType := strings.ToLower(strings.TrimSpace(raw.Type))
	if _, ok := defaultMaxLen[phraseType]; !ok {
		return req, fmt.Errorf("%w: unknown phrase type %q", ErrInvalidField, raw.Type)
	}

	count := raw.Count
	if count == 0 {
		count = 1
	}
	if count < 1 || count > maxCount {
		return req, fmt.Errorf("%w: count must be 1..%d, got %d", ErrInvalidField, maxCount, raw.Count)
	}

	maxLen := raw.MaxLen
	if maxLen == 0 {
		maxLen = defaultMaxLen[phraseType]
	}
	if maxLen < 1 || maxLen > maxMaxLen {
		return req, fmt.Errorf("%w: max_len must be 1..%d, got %d", ErrInvalidField, maxMaxLen, raw.MaxLen)
	}

	req = CanonicalPhraseRequest{
		LevelSystem:  system,
		LevelValue:   value,
		Type:         phraseType,
		Topic:        strings.TrimSpace(raw.Topic),
		IncludeChars: normalizeIncludeChars(raw.IncludeChars),
		Count:        count,
		MaxLen:       maxLen,
	}
	return req, nil
}

// coerceLevelValue accepts JSON numbers (float64 after decoding),
// native ints, and numeric strings like "3" or "HSK3" stripped upstream.
func coerceLevelValue(v interface{}) (int, error) {
	switch value := v.(type) {
	case nil:
		return 0, fmt.Errorf("%w: level value missing", ErrInvalidLevel)
	case int:
		return value, nil
	case int64:
		return int(value), nil
	case float64:
		if value != float64(int(value)) {
			return 0, fmt.Errorf("%w: level value %v is not an integer", ErrInvalidLevel, value)
		}
		return int(value), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("%w: level value %q is not numeric", ErrInvalidLevel, value)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%w: unsupported level value type %T", ErrInvalidLevel, v)
	}
}

// normalizeIncludeChars filters input down to single Han characters,
// deduplicated and sorted so ordering never changes the cache key.
func normalizeIncludeChars(input []string) []string {
	seen := make(map[string]struct{}, len(input))
	out := make([]string, 0, len(input))
	for _, entry := range input {
		for _, r := range entry {
			if !isHan(r) {
				continue
			}
			c := string(r)
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// isHan reports whether r falls inside the CJK ranges the product
// serves: Unified Ideographs, Extension A, and the compatibility block.
func isHan(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF:
		return true
	case r >= 0x3400 && r <= 0x4DBF:
		return true
	case r >= 0xF900 && r <= 0xFAFF:
		return true
	}
	return false
}

// CacheKey hashes the canonical request into its stable cache/search key.
func (r CanonicalPhraseRequest) CacheKey() string {
	tuple := strings.Join([]string{
		r.LevelSystem,
		strconv.Itoa(r.LevelValue),
		r.Type,
		r.Topic,
		strings.Join(r.IncludeChars, ""),
		strconv.Itoa(r.Count),
		strconv.Itoa(r.MaxLen),
	}, "|")
	h := sha256.Sum256([]byte(tuple))
	return fmt.Sprintf("phrase:req:%x", h)
}
