// Package character exposes read-only lookups over the reference
// character data. CRUD over this table belongs to a different surface;
// the phrase engine only ever asks "is this character known".
package character

import (
	"context"

	"github.com/hanziloop/core/internal/models"
	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// KnownSet resolves which of the given characters exist in the
// reference set, in one query.
func (s *Service) KnownSet(ctx context.Context, chars []string) (map[string]bool, error) {
	known := make(map[string]bool, len(chars))
	if len(chars) == 0 {
		return known, nil
	}

	var found []string
	err := s.db.WithContext(ctx).Model(&models.CharacterModel{}).
		Where("`char` IN ?", chars).
		Pluck("`char`", &found).Error
	if err != nil {
		return nil, err
	}
	for _, c := range found {
		known[c] = true
	}
	return known, nil
}
