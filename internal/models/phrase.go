package models

import "time"

// QualityChecks is the named set of boolean correctness flags stored
// alongside each phrase and periodically recomputed by the sweeper.
type QualityChecks struct {
	ContainsAllRequiredChars bool `json:"contains_all_required_chars" gorm:"column:quality_contains_required_chars"`
	LengthRespected          bool `json:"length_respected"            gorm:"column:quality_length_respected"`
	LevelPlausible           bool `json:"level_plausible"             gorm:"column:quality_level_plausible"`
	PinyinConsistent         bool `json:"pinyin_consistent"           gorm:"column:quality_pinyin_consistent"`
	CharSetConsistent        bool `json:"char_set_consistent"         gorm:"column:quality_char_set_consistent"`
}

// RequestProvenance snapshots the originating request so aging phrases
// can be re-validated against what was actually asked for.
type RequestProvenance struct {
	LevelSystem  string      `json:"level_system"  gorm:"column:req_level_system"`
	LevelValue   int         `json:"level_value"   gorm:"column:req_level_value"`
	Type         string      `json:"type"          gorm:"column:req_type"`
	Topic        string      `json:"topic"         gorm:"column:req_topic"`
	IncludeChars StringArray `json:"include_chars" gorm:"column:req_include_chars;type:json"`
	Count        int         `json:"count"         gorm:"column:req_count"`
	MaxLen       int         `json:"max_len"       gorm:"column:req_max_len"`
}

// PhraseModel is a stored, previously generated or retrieved phrase.
type PhraseModel struct {
	Base
	BatchID string `json:"batch_id" gorm:"type:char(36);index;not null"`

	Text           string `json:"text"            gorm:"not null;index"`
	Translation    string `json:"translation"     gorm:"type:text"`
	PinyinMarked   string `json:"pinyin_marked"`   // diacritic form: nǐ hǎo
	PinyinNumbered string `json:"pinyin_numbered"` // numeric-tone form: ni3 hao3

	LevelSystem     string      `json:"level_system"     gorm:"index:idx_phrases_level_type;not null"`
	LevelValue      int         `json:"level_value"      gorm:"index:idx_phrases_level_type;not null"`
	LevelConfidence float64     `json:"level_confidence"`
	Type            string      `json:"type"             gorm:"index:idx_phrases_level_type;not null"`
	Topics          StringArray `json:"topics"           gorm:"type:json"`

	Length              int          `json:"length"                gorm:"not null"`
	CharSet             StringArray  `json:"char_set"              gorm:"type:json"`
	CharOccurrences     IndexListMap `json:"char_occurrences"      gorm:"type:json"`
	IncludeCharsPresent StringArray  `json:"include_chars_present" gorm:"type:json"`

	Quality          QualityChecks     `json:"quality_checks"     gorm:"embedded"`
	QualityCheckedAt *time.Time        `json:"quality_checked_at" gorm:"index"`
	CharsLinkedAt    *time.Time        `json:"chars_linked_at"    gorm:"index"` // backfill stamp, set even when no character was linkable
	Provenance       RequestProvenance `json:"provenance"         gorm:"embedded"`
}

func (PhraseModel) TableName() string { return "phrases" }

// PhraseCharModel links one phrase to one of its characters.
// Enrichment data: created best-effort, backfilled by a cron job.
type PhraseCharModel struct {
	Base
	PhraseID string `json:"phrase_id" gorm:"type:char(36);index;not null"`
	Char     string `json:"char"      gorm:"type:varchar(8);index;not null"`
	Position int    `json:"position"`
}

func (PhraseCharModel) TableName() string { return "phrase_chars" }
