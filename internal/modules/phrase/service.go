package phrase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	appcfg "github.com/hanziloop/core/internal/config"
	"github.com/hanziloop/core/internal/models"
	"github.com/hanziloop/core/internal/pkg/cache"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// broaderConfidenceDiscount reflects that a relaxed match is a weaker
// answer than an exact one.
const broaderConfidenceDiscount = 0.8

// CharacterLookup is the read-only reference-data collaborator the
// backfill job consults.
type CharacterLookup interface {
	KnownSet(ctx context.Context, chars []string) (map[string]bool, error)
}

// Result is what callers get back from the orchestrator: one phrase
// plus provenance.
type Result struct {
	Phrase           *models.PhraseModel `json:"phrase"`
	Source           string              `json:"source"`
	Confidence       float64             `json:"confidence"`
	GenerationTimeMs int64               `json:"generation_time_ms,omitempty"`
}

// Service is the get-or-generate orchestrator.
type Service struct {
	db     *gorm.DB
	repo   *Repo
	cache  cache.PhraseCache
	gen    Generator
	chars  CharacterLookup
	cfg    appcfg.PhraseConfig
	logger *zap.Logger
}

func NewService(db *gorm.DB, c cache.PhraseCache, gen Generator, chars CharacterLookup, cfg appcfg.PhraseConfig, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		repo:   NewRepo(db),
		cache:  c,
		gen:    gen,
		chars:  chars,
		cfg:    cfg,
		logger: logger.Named("PhraseService"),
	}
}

// Repo exposes the repository for the background job registrations.
func (s *Service) Repo() *Repo { return s.repo }

// GetOrGenerate runs the full sequence: cache check, reuse
// eligibility, tiered lookup, generation, validation, persistence,
// best-effort char linking. Every terminal outcome writes one audit row.
func (s *Service) GetOrGenerate(ctx context.Context, raw RawPhraseRequest, meta CallerMeta) (*Result, error) {
	started := time.Now()
	tr := newTrace()

	req, err := Normalize(raw)
	if err != nil {
		tr.note("normalize_failed")
		s.writeLog(ctx, nil, "", tr, logCounts{}, err, meta, started)
		return nil, err
	}
	key := req.CacheKey()

	tr.enter("cache_check")
	if rec, ok := s.cache.Get(ctx, key); ok {
		tr.exit()
		tr.note("cache_hit")
		s.writeLog(ctx, &req, SourceCache, tr, logCounts{}, nil, meta, started)
		return &Result{Phrase: rec, Source: SourceCache, Confidence: rec.LevelConfidence}, nil
	}
	tr.exit()

	tr.enter("reuse_eligibility")
	existingCount, err := s.repo.CountExisting(ctx, req)
	tr.exit()
	if err != nil {
		err = fmt.Errorf("%w: count existing: %v", ErrPersistenceFailure, err)
		s.writeLog(ctx, &req, "", tr, logCounts{}, err, meta, started)
		return nil, err
	}

	if existingCount >= int64(s.cfg.ReuseThreshold) {
		tr.enter("exact_lookup")
		rec, err := s.repo.FindExact(ctx, req)
		tr.exit()
		if err != nil {
			err = fmt.Errorf("%w: exact lookup: %v", ErrPersistenceFailure, err)
			s.writeLog(ctx, &req, "", tr, logCounts{}, err, meta, started)
			return nil, err
		}
		if rec != nil {
			s.cache.Set(ctx, key, rec, s.cacheTTL())
			s.writeLog(ctx, &req, SourceDatabaseExact, tr, logCounts{}, nil, meta, started)
			return &Result{Phrase: rec, Source: SourceDatabaseExact, Confidence: rec.LevelConfidence}, nil
		}

		tr.enter("broader_lookup")
		rec, tier, err := s.repo.FindBroader(ctx, req)
		tr.exit()
		if err != nil {
			err = fmt.Errorf("%w: broader lookup: %v", ErrPersistenceFailure, err)
			s.writeLog(ctx, &req, "", tr, logCounts{}, err, meta, started)
			return nil, err
		}
		if rec != nil {
			tr.note("tier:" + tier)
			s.cache.Set(ctx, key, rec, s.cacheTTL())
			s.writeLog(ctx, &req, SourceDatabaseBroader, tr, logCounts{}, nil, meta, started)
			return &Result{
				Phrase:     rec,
				Source:     SourceDatabaseBroader,
				Confidence: rec.LevelConfidence * broaderConfidenceDiscount,
			}, nil
		}
	} else {
		// Below the threshold early corpora always get fresh content,
		// so they diversify instead of collapsing onto one example.
		tr.note("below_reuse_threshold")
	}

	tr.enter("generate")
	existingPhrases, err := s.repo.RecentTexts(ctx, req, s.cfg.ContextLimit)
	if err != nil {
		s.logger.Warn("failed to load context phrases, generating without", zap.Error(err))
		existingPhrases = nil
	}
	genResult, err := s.gen.Generate(ctx, req, existingPhrases)
	tr.exit()
	if err != nil {
		if !errors.Is(err, ErrGenerationUnavailable) {
			err = fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
		}
		s.writeLog(ctx, &req, "", tr, logCounts{}, err, meta, started)
		return nil, err
	}

	tr.enter("validate")
	valid := make([]GeneratedPhrase, 0, len(genResult.Items))
	for i, item := range genResult.Items {
		vr := Validate(item, req)
		if !vr.IsValid {
			s.logger.Warn("generated item rejected",
				zap.Int("index", i),
				zap.String("text", item.Text),
				zap.Any("errors", vr.Errors))
			continue
		}
		if len(vr.Warnings) > 0 {
			s.logger.Info("generated item accepted with warnings",
				zap.Int("index", i),
				zap.Any("warnings", vr.Warnings))
		}
		valid = append(valid, item)
	}
	tr.exit()
	counts := logCounts{Generated: len(genResult.Items), Valid: len(valid)}
	if len(valid) == 0 {
		err = fmt.Errorf("%w: %d items generated, none valid", ErrNoValidPhrases, len(genResult.Items))
		s.writeLog(ctx, &req, "", tr, counts, err, meta, started)
		return nil, err
	}

	// Persist the full valid set under one batch id so future reuse
	// lookups benefit from every validated item, not just the first.
	tr.enter("persist")
	batchID := uuid.New().String()
	records := make([]*models.PhraseModel, 0, len(valid))
	for _, item := range valid {
		records = append(records, buildRecord(item, req, batchID))
	}
	err = s.repo.InsertBatch(ctx, records)
	tr.exit()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		s.writeLog(ctx, &req, "", tr, counts, err, meta, started)
		return nil, err
	}
	counts.Stored = len(records)

	// Selection is deterministic: first valid item in response order.
	selected := records[0]

	tr.enter("link_chars")
	if err := s.linkChars(ctx, selected); err != nil {
		s.logger.Warn("char linking failed (non-fatal)",
			zap.String("phrase_id", selected.ID), zap.Error(err))
		tr.note("link_chars_failed")
	}
	tr.exit()

	s.cache.Set(ctx, key, selected, s.cacheTTL())
	s.writeLog(ctx, &req, SourceAIGenerated, tr, counts, nil, meta, started)
	return &Result{
		Phrase:           selected,
		Source:           SourceAIGenerated,
		Confidence:       selected.LevelConfidence,
		GenerationTimeMs: genResult.GenerationTimeMs,
	}, nil
}

func (s *Service) linkChars(ctx context.Context, rec *models.PhraseModel) error {
	links := make([]models.PhraseCharModel, 0, rec.Length)
	for i, r := range []rune(rec.Text) {
		links = append(links, models.PhraseCharModel{Char: string(r), Position: i})
	}
	return s.repo.InsertPhraseChars(ctx, rec.ID, links)
}

func (s *Service) cacheTTL() time.Duration {
	return time.Duration(s.cfg.CacheTTLHours) * time.Hour
}

// logCounts tallies items through the generate/validate/persist stages.
type logCounts struct {
	Generated int
	Valid     int
	Stored    int
}

// writeLog records the audit row for one orchestration attempt.
// Logging failures are swallowed: audit must never break the main flow.
func (s *Service) writeLog(ctx context.Context, req *CanonicalPhraseRequest, source string, tr *trace, counts logCounts, cause error, meta CallerMeta, started time.Time) {
	entry := models.GenerationLogModel{
		DecisionPath:   models.StringArray(tr.path),
		StageTimingsMs: tr.timingsJSON(),
		Source:         source,
		GeneratedCount: counts.Generated,
		ValidCount:     counts.Valid,
		StoredCount:    counts.Stored,
		CallerID:       meta.CallerID,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		DurationMs:     time.Since(started).Milliseconds(),
	}
	if req != nil {
		entry.RequestHash = req.CacheKey()
		if snapshot, err := json.Marshal(req); err == nil {
			entry.RequestSnapshot = string(snapshot)
		}
	}
	if cause != nil {
		entry.ErrorType = classifyError(cause)
		entry.ErrorMessage = cause.Error()
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Warn("failed to write generation log", zap.Error(err))
	}
}

// classifyError maps any failure onto the caller-facing taxonomy so the
// audit row stays machine-filterable even for generic causes.
func classifyError(err error) string {
	switch {
	case errors.Is(err, ErrInvalidLevel):
		return "invalid_level"
	case errors.Is(err, ErrInvalidField):
		return "invalid_field"
	case errors.Is(err, ErrGenerationUnavailable):
		return "generation_unavailable"
	case errors.Is(err, ErrNoValidPhrases):
		return "no_valid_phrases"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence_failure"
	default:
		return "internal"
	}
}

// trace tracks the decision path and per-stage timings of one call.
type trace struct {
	path      []string
	timings   map[string]int64
	current   string
	enteredAt time.Time
}

func newTrace() *trace {
	return &trace{timings: make(map[string]int64)}
}

func (t *trace) enter(stage string) {
	t.path = append(t.path, stage)
	t.current = stage
	t.enteredAt = time.Now()
}

func (t *trace) exit() {
	if t.current == "" {
		return
	}
	t.timings[t.current] += time.Since(t.enteredAt).Milliseconds()
	t.current = ""
}

func (t *trace) note(marker string) {
	t.path = append(t.path, marker)
}

func (t *trace) timingsJSON() string {
	raw, err := json.Marshal(t.timings)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
