package models

// CharacterModel is the reference character data consumed read-only
// by the phrase engine (existence lookups during char-link backfill).
type CharacterModel struct {
	Base
	Char       string `json:"char"       gorm:"type:varchar(8);uniqueIndex;not null"`
	Pinyin     string `json:"pinyin"`
	Definition string `json:"definition" gorm:"type:text"`
	HSKLevel   int    `json:"hsk_level"  gorm:"index"`
	Frequency  int    `json:"frequency"`
}

func (CharacterModel) TableName() string { return "characters" }
