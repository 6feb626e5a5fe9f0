package phrase

import (
	"context"
	"errors"
)

// Level systems accepted by the normalizer, each with a closed value range.
const (
	LevelSystemHSK        = "hsk"        // 1..6
	LevelSystemDifficulty = "difficulty" // 1..10
	LevelSystemGrade      = "grade"      // 1..9
)

// Phrase categories.
const (
	TypePhrase   = "phrase"
	TypeSentence = "sentence"
	TypeIdiom    = "idiom" // chengyu, exactly four characters
)

// Result sources, in the order the orchestrator tries them.
const (
	SourceCache           = "cache"
	SourceDatabaseExact   = "database_exact"
	SourceDatabaseBroader = "database_broader"
	SourceAIGenerated     = "ai_generated"
)

// Caller-facing error taxonomy. Handlers map these to HTTP statuses;
// everything else surfaces as ErrPersistenceFailure or a wrapped cause.
var (
	ErrInvalidLevel          = errors.New("level value outside its system's range")
	ErrInvalidField          = errors.New("malformed request field")
	ErrGenerationUnavailable = errors.New("generation service unavailable")
	ErrNoValidPhrases        = errors.New("no generated phrase passed validation")
	ErrPersistenceFailure    = errors.New("failed to persist generated phrases")
)

// RawPhraseRequest is the loosely-typed caller input before normalization.
// LevelValue tolerates both JSON numbers and strings.
type RawPhraseRequest struct {
	LevelSystem  string      `json:"level_system"`
	LevelValue   interface{} `json:"level_value"`
	Type         string      `json:"type"`
	Topic        string      `json:"topic"`
	IncludeChars []string    `json:"include_chars"`
	Count        int         `json:"count"`
	MaxLen       int         `json:"max_len"`
}

// CanonicalPhraseRequest is the normalized, validated form of a phrase
// request. Immutable after construction; its hash is the cache/search key.
type CanonicalPhraseRequest struct {
	LevelSystem  string   `json:"level_system"`
	LevelValue   int      `json:"level_value"`
	Type         string   `json:"type"`
	Topic        string   `json:"topic,omitempty"`
	IncludeChars []string `json:"include_chars"` // deduplicated, sorted, Han-only
	Count        int      `json:"count"`
	MaxLen       int      `json:"max_len"`
}

// GeneratedPhrase is one structurally-validated item from the
// generation service, before content validation.
type GeneratedPhrase struct {
	Text            string  `json:"text"`
	Translation     string  `json:"translation"`
	PinyinMarked    string  `json:"pinyin_marked"`
	PinyinNumbered  string  `json:"pinyin_numbered"`
	LevelConfidence float64 `json:"level_confidence"`
	Length          int     `json:"length"`
}

// GenerationResult is what the generation client hands back.
type GenerationResult struct {
	Items            []GeneratedPhrase
	ModelUsed        string
	GenerationTimeMs int64
}

// Generator is the generation-service contract the orchestrator
// depends on; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, req CanonicalPhraseRequest, existingPhrases []string) (*GenerationResult, error)
}

// CallerMeta is audit metadata recorded with each orchestration attempt.
type CallerMeta struct {
	CallerID  string
	IPAddress string
	UserAgent string
}

// ValidationIssue is a single named validator finding.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds the validator verdict. A candidate is accepted
// only with zero errors; warnings are retained for audit.
type ValidationResult struct {
	IsValid  bool              `json:"is_valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

type getOrGenerateDTO struct {
	RawPhraseRequest
	CallerID string `json:"caller_id"`
}
