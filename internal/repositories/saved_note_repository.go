package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"memit/internal/models"
)

type SavedNoteRepository interface {
	Create(ctx context.Context, note *models.SavedNote) error
	List(ctx context.Context, limit, offset int) ([]models.SavedNote, error)
	ListByWord(ctx context.Context, word string) ([]models.SavedNote, error)
}

type savedNoteRepository struct {
	db *gorm.DB
}

func NewSavedNoteRepository(db *gorm.DB) SavedNoteRepository {
	return &savedNoteRepository{db: db}
}

func (r *savedNoteRepository) Create(ctx context.Context, note *models.SavedNote) error {
	if note == nil {
		return fmt.Errorf("note is required")
	}
	return r.db.WithContext(ctx).Create(note).Error
}

func (r *savedNoteRepository) List(ctx context.Context, limit, offset int) ([]models.SavedNote, error) {
	var notes []models.SavedNote
	q := r.db.WithContext(ctx).Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&notes).Error; err != nil {
		return nil, err
	}
	return notes, nil
}

func (r *savedNoteRepository) ListByWord(ctx context.Context, word string) ([]models.SavedNote, error) {
	var notes []models.SavedNote
	if err := r.db.WithContext(ctx).Where("word = ?", word).Order("id desc").Find(&notes).Error; err != nil {
		return nil, err
	}
	return notes, nil
}
