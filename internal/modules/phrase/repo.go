package phrase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hanziloop/core/internal/models"
	"gorm.io/gorm"
)

// Repo provides the tiered phrase lookups and batch persistence.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// matcher is one named relaxation tier. Tiers share the level/type
// core and differ in how strictly length, topic, and character
// coverage are enforced.
type matcher struct {
	name  string
	apply func(q *gorm.DB, req CanonicalPhraseRequest) *gorm.DB
}

// broaderMatchers run in order after the exact tier fails, most to
// least strict: allow two extra characters, then drop the topic
// filter, then accept a char_set superset instead of the narrower
// include_chars_present coverage.
var broaderMatchers = []matcher{
	{
		name: "relaxed-length",
		apply: func(q *gorm.DB, req CanonicalPhraseRequest) *gorm.DB {
			q = q.Where("length <= ?", req.MaxLen+2)
			q = withTopic(q, req)
			return withPresentChars(q, req)
		},
	},
	{
		name: "ignore-topic",
		apply: func(q *gorm.DB, req CanonicalPhraseRequest) *gorm.DB {
			q = q.Where("length <= ?", req.MaxLen+2)
			return withPresentChars(q, req)
		},
	},
	{
		name: "charset-superset",
		apply: func(q *gorm.DB, req CanonicalPhraseRequest) *gorm.DB {
			q = q.Where("length <= ?", req.MaxLen+2)
			for _, c := range req.IncludeChars {
				q = q.Where("char_set LIKE ?", jsonElemPattern(c))
			}
			return q
		},
	},
}

// FindExact returns the newest, highest-confidence phrase matching
// every constraint of the request, or nil on miss.
func (r *Repo) FindExact(ctx context.Context, req CanonicalPhraseRequest) (*models.PhraseModel, error) {
	q := r.base(ctx, req).Where("length <= ?", req.MaxLen)
	q = withTopic(q, req)
	q = withPresentChars(q, req)
	return r.firstMatch(q)
}

// FindBroader walks the relaxation ladder and returns the first hit
// together with the tier name that produced it.
func (r *Repo) FindBroader(ctx context.Context, req CanonicalPhraseRequest) (*models.PhraseModel, string, error) {
	for _, m := range broaderMatchers {
		rec, err := r.firstMatch(m.apply(r.base(ctx, req), req))
		if err != nil {
			return nil, "", err
		}
		if rec != nil {
			return rec, m.name, nil
		}
	}
	return nil, "", nil
}

// CountExisting counts phrases for level+type only; the orchestrator's
// anti-duplication heuristic.
func (r *Repo) CountExisting(ctx context.Context, req CanonicalPhraseRequest) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PhraseModel{}).
		Where("level_system = ? AND level_value = ? AND type = ?", req.LevelSystem, req.LevelValue, req.Type).
		Count(&count).Error
	return count, err
}

// RecentTexts returns the most recent phrase texts for level+type,
// handed to the generator so new output avoids repeating them.
func (r *Repo) RecentTexts(ctx context.Context, req CanonicalPhraseRequest, limit int) ([]string, error) {
	var texts []string
	err := r.db.WithContext(ctx).Model(&models.PhraseModel{}).
		Where("level_system = ? AND level_value = ? AND type = ?", req.LevelSystem, req.LevelValue, req.Type).
		Order("created_at DESC").
		Limit(limit).
		Pluck("text", &texts).Error
	if err != nil {
		return nil, err
	}
	return texts, nil
}

// InsertBatch persists all records in one transaction. Either every
// row becomes visible or none: a partial batch with a shared batch_id
// would corrupt provenance.
func (r *Repo) InsertBatch(ctx context.Context, records []*models.PhraseModel) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			if err := tx.Create(rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertPhraseChars creates character links for one phrase. Callers
// treat failure as non-fatal: links are enrichment, not correctness.
func (r *Repo) InsertPhraseChars(ctx context.Context, phraseID string, chars []models.PhraseCharModel) error {
	if len(chars) == 0 {
		return nil
	}
	for i := range chars {
		chars[i].PhraseID = phraseID
	}
	return r.db.WithContext(ctx).Create(&chars).Error
}

// PhrasesWithoutCharLinks finds phrases the backfill has not processed
// yet and that have no character links. The chars_linked_at stamp keeps
// phrases whose characters are all outside the reference set from
// re-entering the batch every run.
func (r *Repo) PhrasesWithoutCharLinks(ctx context.Context, limit int) ([]models.PhraseModel, error) {
	var phrases []models.PhraseModel
	sub := r.db.Model(&models.PhraseCharModel{}).Distinct("phrase_id")
	err := r.db.WithContext(ctx).
		Where("chars_linked_at IS NULL").
		Where("id NOT IN (?)", sub).
		Order("created_at ASC").
		Limit(limit).
		Find(&phrases).Error
	return phrases, err
}

// MarkCharsLinked stamps a phrase as processed by the char-link backfill.
func (r *Repo) MarkCharsLinked(ctx context.Context, phraseID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.PhraseModel{}).
		Where("id = ?", phraseID).
		Update("chars_linked_at", at).Error
}

// StalePhrases finds phrases due for a quality re-check: never checked,
// or last checked before the cutoff.
func (r *Repo) StalePhrases(ctx context.Context, cutoff time.Time, limit int) ([]models.PhraseModel, error) {
	var phrases []models.PhraseModel
	err := r.db.WithContext(ctx).
		Where("quality_checked_at IS NULL OR quality_checked_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&phrases).Error
	return phrases, err
}

// UpdateQuality writes recomputed quality flags and stamps the check time.
func (r *Repo) UpdateQuality(ctx context.Context, phraseID string, checks models.QualityChecks, checkedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.PhraseModel{}).
		Where("id = ?", phraseID).
		Updates(map[string]interface{}{
			"quality_contains_required_chars": checks.ContainsAllRequiredChars,
			"quality_length_respected":        checks.LengthRespected,
			"quality_level_plausible":         checks.LevelPlausible,
			"quality_pinyin_consistent":       checks.PinyinConsistent,
			"quality_char_set_consistent":     checks.CharSetConsistent,
			"quality_checked_at":              checkedAt,
		}).Error
}

// PruneLogs deletes generation log rows older than the cutoff and
// reports how many were removed.
func (r *Repo) PruneLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Unscoped().
		Delete(&models.GenerationLogModel{})
	return result.RowsAffected, result.Error
}

// base is the level/type core shared by every lookup tier, plus the
// coverage quality gate and the hit ordering.
func (r *Repo) base(ctx context.Context, req CanonicalPhraseRequest) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.PhraseModel{}).
		Where("level_system = ? AND level_value = ? AND type = ?", req.LevelSystem, req.LevelValue, req.Type).
		Where("quality_contains_required_chars = ?", true).
		Order("created_at DESC").
		Order("level_confidence DESC")
}

func (r *Repo) firstMatch(q *gorm.DB) (*models.PhraseModel, error) {
	var rec models.PhraseModel
	if err := q.First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// withTopic filters on the topics column when the request names one.
// Topic participates in the exact and relaxed-length tiers; the
// ignore-topic tier drops it.
func withTopic(q *gorm.DB, req CanonicalPhraseRequest) *gorm.DB {
	if req.Topic == "" {
		return q
	}
	return q.Where("topics LIKE ?", jsonElemPattern(req.Topic))
}

// withPresentChars requires include_chars_present to cover every
// required character.
func withPresentChars(q *gorm.DB, req CanonicalPhraseRequest) *gorm.DB {
	for _, c := range req.IncludeChars {
		q = q.Where("include_chars_present LIKE ?", jsonElemPattern(c))
	}
	return q
}

// jsonElemPattern matches one exact string element inside a
// JSON-serialized array column.
func jsonElemPattern(elem string) string {
	return fmt.Sprintf(`%%"%s"%%`, elem)
}
