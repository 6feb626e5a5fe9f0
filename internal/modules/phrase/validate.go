package phrase

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hanziloop/core/internal/models"
)

// Validation issue codes, in check order.
const (
	CheckStructure = "structure"
	CheckCoverage  = "coverage"
	CheckLength    = "length"
	CheckShape     = "shape"
	CheckPinyin    = "pinyin"
)

const (
	idiomExactLen    = 4
	sentenceShortLen = 6
)

var (
	// One syllable in diacritic form: latin letters plus tone-marked
	// vowels and ü. Neutral tone carries no mark, so bare letters pass.
	pinyinMarkedUnit = regexp.MustCompile(`^[a-zA-ZüÜāáǎàēéěèīíǐìōóǒòūúǔùǖǘǚǜĀÁǍÀĒÉĚÈĪÍǏÌŌÓǑÒŪÚǓÙ]+$`)
	// One syllable in numeric-tone form: letters then a tone digit
	// (5 = neutral).
	pinyinNumberedUnit = regexp.MustCompile(`^[a-zA-ZüÜvV]+[1-5]$`)
)

// Validate checks a generated candidate against the request. Checks run
// in a fixed order; any error rejects the candidate, warnings never do.
func Validate(candidate GeneratedPhrase, req CanonicalPhraseRequest) ValidationResult {
	result := ValidationResult{}
	text := strings.TrimSpace(candidate.Text)
	runes := []rune(text)

	for _, r := range runes {
		if !isHan(r) {
			result.addError(CheckStructure, fmt.Sprintf("character %q is outside the target script", string(r)))
			break
		}
	}

	// Required characters are a minimum, not an exact set.
	for _, c := range req.IncludeChars {
		if !strings.Contains(text, c) {
			result.addError(CheckCoverage, fmt.Sprintf("required character %q missing", c))
		}
	}

	if len(runes) > req.MaxLen {
		result.addError(CheckLength, fmt.Sprintf("phrase has %d characters, max is %d", len(runes), req.MaxLen))
	}

	switch req.Type {
	case TypeIdiom:
		if len(runes) != idiomExactLen {
			result.addError(CheckShape, fmt.Sprintf("idiom must be exactly %d characters, got %d", idiomExactLen, len(runes)))
		}
	case TypeSentence:
		if len(runes) < sentenceShortLen {
			result.addWarning(CheckShape, fmt.Sprintf("sentence is unusually short (%d characters)", len(runes)))
		}
	}

	if issue, ok := checkPinyinEncoding(candidate.PinyinMarked, len(runes), pinyinMarkedUnit, "diacritic"); !ok {
		result.addError(CheckPinyin, issue)
	}
	if issue, ok := checkPinyinEncoding(candidate.PinyinNumbered, len(runes), pinyinNumberedUnit, "numeric"); !ok {
		result.addError(CheckPinyin, issue)
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// checkPinyinEncoding verifies one pronunciation encoding has exactly
// one unit per phrase character and every unit matches its lexical pattern.
func checkPinyinEncoding(encoded string, charCount int, pattern *regexp.Regexp, label string) (string, bool) {
	units := strings.Fields(encoded)
	if len(units) != charCount {
		return fmt.Sprintf("%s pinyin has %d units for %d characters", label, len(units), charCount), false
	}
	for _, unit := range units {
		if !pattern.MatchString(unit) {
			return fmt.Sprintf("%s pinyin unit %q is malformed", label, unit), false
		}
	}
	return "", true
}

func (r *ValidationResult) addError(code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{Code: code, Message: message})
}

func (r *ValidationResult) addWarning(code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Code: code, Message: message})
}

// ComputeQuality recomputes the stored quality flags for a persisted
// record against its own provenance. Used at creation time and by the
// daily sweeper; both must agree on the definitions.
func ComputeQuality(rec *models.PhraseModel) models.QualityChecks {
	runes := []rune(rec.Text)
	charsOK := true
	for _, c := range rec.Provenance.IncludeChars {
		if !strings.Contains(rec.Text, c) {
			charsOK = false
			break
		}
	}

	bounds, known := levelRanges[rec.LevelSystem]
	levelOK := known &&
		rec.LevelValue >= bounds.min && rec.LevelValue <= bounds.max &&
		rec.LevelConfidence >= 0.5

	_, markedOK := checkPinyinEncoding(rec.PinyinMarked, len(runes), pinyinMarkedUnit, "diacritic")
	_, numberedOK := checkPinyinEncoding(rec.PinyinNumbered, len(runes), pinyinNumberedUnit, "numeric")

	return models.QualityChecks{
		ContainsAllRequiredChars: charsOK,
		LengthRespected:          rec.Length == len(runes) && (rec.Provenance.MaxLen == 0 || rec.Length <= rec.Provenance.MaxLen),
		LevelPlausible:           levelOK,
		PinyinConsistent:         markedOK && numberedOK,
		CharSetConsistent:        charSetMatches(rec),
	}
}

func charSetMatches(rec *models.PhraseModel) bool {
	derived := uniqueSortedChars(rec.Text)
	if len(derived) != len(rec.CharSet) {
		return false
	}
	for i, c := range derived {
		if rec.CharSet[i] != c {
			return false
		}
	}
	return true
}
