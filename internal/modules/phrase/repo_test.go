package phrase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hanziloop/core/internal/database"
	"github.com/hanziloop/core/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB opens an isolated in-memory database per test. The unique
// DSN keeps parallel tests from sharing state.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// seedPhrase inserts one phrase built through the same derivation the
// orchestrator uses, so stored invariants hold.
func seedPhrase(t *testing.T, db *gorm.DB, item GeneratedPhrase, req CanonicalPhraseRequest) *models.PhraseModel {
	t.Helper()
	rec := buildRecord(item, req, "seed-batch")
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("seed phrase: %v", err)
	}
	return rec
}

func genItem(text, translation string) GeneratedPhrase {
	runes := []rune(text)
	marked := ""
	numbered := ""
	for i := range runes {
		if i > 0 {
			marked += " "
			numbered += " "
		}
		marked += "mǎ"
		numbered += "ma3"
	}
	return GeneratedPhrase{
		Text:            text,
		Translation:     translation,
		PinyinMarked:    marked,
		PinyinNumbered:  numbered,
		LevelConfidence: 0.9,
		Length:          len(runes),
	}
}

func TestRepo_FindExactHitAndMiss(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase", IncludeChars: []string{"你"}})
	seedPhrase(t, db, genItem("你好", "hello"), req)

	rec, err := repo.FindExact(ctx, req)
	if err != nil {
		t.Fatalf("find exact: %v", err)
	}
	if rec == nil || rec.Text != "你好" {
		t.Fatalf("expected hit on 你好, got %+v", rec)
	}

	other := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 2, Type: "phrase", IncludeChars: []string{"你"}})
	rec, err = repo.FindExact(ctx, other)
	if err != nil {
		t.Fatalf("find exact: %v", err)
	}
	if rec != nil {
		t.Fatalf("level mismatch must miss, got %+v", rec)
	}
}

func TestRepo_FindExactRespectsTopic(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	foodReq := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase", Topic: "food"})
	seedPhrase(t, db, genItem("好吃", "tasty"), foodReq)

	travelReq := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase", Topic: "travel"})
	rec, err := repo.FindExact(ctx, travelReq)
	if err != nil {
		t.Fatalf("find exact: %v", err)
	}
	if rec != nil {
		t.Fatalf("topic mismatch must miss the exact tier, got %+v", rec)
	}
}

func TestRepo_FindExactPrefersNewestThenConfidence(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase"})

	old := buildRecord(genItem("旧的", "old one"), req, "b1")
	old.CreatedAt = time.Now().Add(-time.Hour)
	if err := db.Create(old).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	lowConf := genItem("最新", "newest, less sure")
	lowConf.LevelConfidence = 0.6
	newLow := buildRecord(lowConf, req, "b2")
	newLow.CreatedAt = time.Now()
	highConf := genItem("最好", "newest, most sure")
	newHigh := buildRecord(highConf, req, "b2")
	newHigh.CreatedAt = newLow.CreatedAt
	if err := db.Create(newLow).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.Create(newHigh).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, err := repo.FindExact(ctx, req)
	if err != nil {
		t.Fatalf("find exact: %v", err)
	}
	if rec == nil || rec.Text != "最好" {
		t.Fatalf("expected newest highest-confidence row, got %+v", rec)
	}
}

func TestRepo_FindBroaderRelaxedLength(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	// Stored phrase is 4 chars; the query caps at 3 so the exact tier
	// misses, but max_len+2 admits it.
	seedReq := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase", IncludeChars: []string{"你"}})
	seedPhrase(t, db, genItem("你好我好", "all good"), seedReq)

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase", IncludeChars: []string{"你"}, MaxLen: 3})
	if rec, err := repo.FindExact(ctx, req); err != nil || rec != nil {
		t.Fatalf("exact tier should miss: rec=%+v err=%v", rec, err)
	}

	rec, tier, err := repo.FindBroader(ctx, req)
	if err != nil {
		t.Fatalf("find broader: %v", err)
	}
	if rec == nil || tier != "relaxed-length" {
		t.Fatalf("expected relaxed-length hit, got tier=%q rec=%+v", tier, rec)
	}
}

func TestRepo_FindBroaderIgnoresTopic(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	seedReq := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase", Topic: "food", IncludeChars: []string{"吃"}})
	seedPhrase(t, db, genItem("吃饭", "eat"), seedReq)

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase", Topic: "travel", IncludeChars: []string{"吃"}})
	rec, tier, err := repo.FindBroader(ctx, req)
	if err != nil {
		t.Fatalf("find broader: %v", err)
	}
	if rec == nil || tier != "ignore-topic" {
		t.Fatalf("expected ignore-topic hit, got tier=%q rec=%+v", tier, rec)
	}
}

func TestRepo_FindBroaderCharsetSuperset(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	// Seeded without the requirement, so include_chars_present is empty
	// and only char_set can prove coverage.
	seedReq := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase"})
	seedPhrase(t, db, genItem("你好", "hello"), seedReq)

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase", IncludeChars: []string{"你"}})
	rec, tier, err := repo.FindBroader(ctx, req)
	if err != nil {
		t.Fatalf("find broader: %v", err)
	}
	if rec == nil || tier != "charset-superset" {
		t.Fatalf("expected charset-superset hit, got tier=%q rec=%+v", tier, rec)
	}
}

func TestRepo_FindBroaderTotalMiss(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	seedReq := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase"})
	seedPhrase(t, db, genItem("早上好", "good morning"), seedReq)

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase", IncludeChars: []string{"猫"}})
	rec, tier, err := repo.FindBroader(ctx, req)
	if err != nil {
		t.Fatalf("find broader: %v", err)
	}
	if rec != nil || tier != "" {
		t.Fatalf("expected miss across all tiers, got tier=%q rec=%+v", tier, rec)
	}
}

func TestRepo_CountExistingAndRecentTexts(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase"})
	texts := []string{"你好", "再见", "谢谢"}
	for _, text := range texts {
		seedPhrase(t, db, genItem(text, "x"), req)
	}
	// Different type must not count.
	other := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "sentence"})
	seedPhrase(t, db, genItem("我很好", "I am fine"), other)

	count, err := repo.CountExisting(ctx, req)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	recent, err := repo.RecentTexts(ctx, req, 2)
	if err != nil {
		t.Fatalf("recent texts: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent texts len = %d, want 2", len(recent))
	}
	for _, text := range recent {
		if text == "我很好" {
			t.Fatal("recent texts leaked a different phrase type")
		}
	}
}

func TestRepo_InsertBatchAtomicity(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase"})
	good := buildRecord(genItem("你好", "hello"), req, "batch-x")
	good.ID = "fixed-id"
	dup := buildRecord(genItem("再见", "bye"), req, "batch-x")
	dup.ID = good.ID // forced primary key collision

	if err := repo.InsertBatch(ctx, []*models.PhraseModel{good, dup}); err == nil {
		t.Fatal("expected the batch insert to fail")
	}

	var count int64
	if err := db.Model(&models.PhraseModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed batch left %d rows behind, want 0", count)
	}
}

func TestRepo_InsertBatchSharesBatchID(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase"})
	records := []*models.PhraseModel{
		buildRecord(genItem("你好", "hello"), req, "batch-y"),
		buildRecord(genItem("再见", "bye"), req, "batch-y"),
	}
	if err := repo.InsertBatch(ctx, records); err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	var stored []models.PhraseModel
	if err := db.Where("batch_id = ?", "batch-y").Find(&stored).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored %d rows under the batch, want 2", len(stored))
	}
}

func TestRepo_PhrasesWithoutCharLinks(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase"})
	linked := seedPhrase(t, db, genItem("你好", "hello"), req)
	unlinked := seedPhrase(t, db, genItem("再见", "bye"), req)

	if err := repo.InsertPhraseChars(ctx, linked.ID, []models.PhraseCharModel{
		{Char: "你", Position: 0},
		{Char: "好", Position: 1},
	}); err != nil {
		t.Fatalf("insert chars: %v", err)
	}

	missing, err := repo.PhrasesWithoutCharLinks(ctx, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(missing) != 1 || missing[0].ID != unlinked.ID {
		t.Fatalf("expected only the unlinked phrase, got %+v", missing)
	}
}

func TestRepo_StalePhrasesAndUpdateQuality(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase"})
	rec := seedPhrase(t, db, genItem("你好", "hello"), req) // quality_checked_at NULL

	stale, err := repo.StalePhrases(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("never-checked phrase must be stale, got %d rows", len(stale))
	}

	if err := repo.UpdateQuality(ctx, rec.ID, rec.Quality, time.Now()); err != nil {
		t.Fatalf("update quality: %v", err)
	}

	stale, err = repo.StalePhrases(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("freshly-checked phrase must not be stale, got %d rows", len(stale))
	}
}

func TestRepo_PruneLogs(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	oldLog := models.GenerationLogModel{RequestHash: "old", Source: SourceCache}
	if err := db.Create(&oldLog).Error; err != nil {
		t.Fatalf("seed log: %v", err)
	}
	if err := db.Model(&oldLog).Update("created_at", time.Now().AddDate(0, 0, -120)).Error; err != nil {
		t.Fatalf("age log: %v", err)
	}
	fresh := models.GenerationLogModel{RequestHash: "fresh", Source: SourceCache}
	if err := db.Create(&fresh).Error; err != nil {
		t.Fatalf("seed log: %v", err)
	}

	removed, err := repo.PruneLogs(ctx, time.Now().AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	var count int64
	if err := db.Model(&models.GenerationLogModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("remaining logs = %d, want 1", count)
	}
}
