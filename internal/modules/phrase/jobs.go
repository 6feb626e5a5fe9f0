package phrase

import (
	"context"
	"time"

	"github.com/hanziloop/core/internal/models"
	"go.uber.org/zap"
)

const (
	backfillBatchLimit = 200
	sweepBatchLimit    = 500
	sweepMaxAge        = 30 * 24 * time.Hour
)

// BackfillCharLinks finds phrases lacking character links and creates
// them in bounded batches. Only characters present in the reference
// character set are linked; per-phrase failures are counted but never
// abort the batch. Every processed phrase gets stamped, including ones
// with nothing linkable, so each phrase passes through here at most once.
func (s *Service) BackfillCharLinks(ctx context.Context) (linked, failed int, err error) {
	phrases, err := s.repo.PhrasesWithoutCharLinks(ctx, backfillBatchLimit)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now()
	for _, rec := range phrases {
		known, lookupErr := s.chars.KnownSet(ctx, []string(rec.CharSet))
		if lookupErr != nil {
			s.logger.Warn("character lookup failed during backfill",
				zap.String("phrase_id", rec.ID), zap.Error(lookupErr))
			failed++
			continue
		}

		links := make([]models.PhraseCharModel, 0, rec.Length)
		for i, r := range []rune(rec.Text) {
			c := string(r)
			if !known[c] {
				continue
			}
			links = append(links, models.PhraseCharModel{Char: c, Position: i})
		}
		if len(links) > 0 {
			if insertErr := s.repo.InsertPhraseChars(ctx, rec.ID, links); insertErr != nil {
				s.logger.Warn("char link insert failed during backfill",
					zap.String("phrase_id", rec.ID), zap.Error(insertErr))
				failed++
				continue
			}
			linked++
		}
		if stampErr := s.repo.MarkCharsLinked(ctx, rec.ID, now); stampErr != nil {
			s.logger.Warn("char-link stamp failed",
				zap.String("phrase_id", rec.ID), zap.Error(stampErr))
		}
	}
	return linked, failed, nil
}

// SweepQuality re-validates aging phrases: records older than the age
// cutoff or never quality-checked get their flags recomputed, with a
// write-back only when something actually changed.
func (s *Service) SweepQuality(ctx context.Context) (checked, updated int, err error) {
	cutoff := time.Now().Add(-sweepMaxAge)
	phrases, err := s.repo.StalePhrases(ctx, cutoff, sweepBatchLimit)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now()
	for i := range phrases {
		rec := &phrases[i]
		checked++
		recomputed := ComputeQuality(rec)
		if recomputed == rec.Quality && rec.QualityCheckedAt != nil {
			continue
		}
		if updateErr := s.repo.UpdateQuality(ctx, rec.ID, recomputed, now); updateErr != nil {
			s.logger.Warn("quality write-back failed",
				zap.String("phrase_id", rec.ID), zap.Error(updateErr))
			continue
		}
		updated++
	}
	return checked, updated, nil
}

// PruneLogs deletes generation log rows past the retention window.
func (s *Service) PruneLogs(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.LogRetentionDays)
	return s.repo.PruneLogs(ctx, cutoff)
}
