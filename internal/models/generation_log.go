package models

// GenerationLogModel is one audit row per orchestration attempt.
// Written on every terminal state, never mutated, pruned by age.
type GenerationLogModel struct {
	Base
	RequestHash     string      `json:"request_hash"     gorm:"index;not null"`
	RequestSnapshot string      `json:"request_snapshot" gorm:"type:text"` // canonical request as JSON
	DecisionPath    StringArray `json:"decision_path"    gorm:"type:json"`
	StageTimingsMs  string      `json:"stage_timings_ms" gorm:"type:text"` // stage → ms as JSON
	Source          string      `json:"source"           gorm:"index"`

	GeneratedCount int `json:"generated_count"`
	ValidCount     int `json:"valid_count"`
	StoredCount    int `json:"stored_count"`

	ErrorType    string `json:"error_type"    gorm:"index"`
	ErrorMessage string `json:"error_message" gorm:"type:text"`

	CallerID   string `json:"caller_id"  gorm:"index"`
	IPAddress  string `json:"ip_address"`
	UserAgent  string `json:"user_agent"`
	DurationMs int64  `json:"duration_ms"`
}

func (GenerationLogModel) TableName() string { return "generation_logs" }
