package mocks

import (
	"context"
	"sync"

	"memit/internal/models"
)

type SavedNoteRepositoryMock struct {
	CreateFunc     func(ctx context.Context, note *models.SavedNote) error
	ListFunc       func(ctx context.Context, limit, offset int) ([]models.SavedNote, error)
	ListByWordFunc func(ctx context.Context, word string) ([]models.SavedNote, error)

	mu      sync.Mutex
	Created []models.SavedNote
}

func (m *SavedNoteRepositoryMock) Create(ctx context.Context, note *models.SavedNote) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, note)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	note.ID = uint(len(m.Created) + 1)
	m.Created = append(m.Created, *note)
	return nil
}

func (m *SavedNoteRepositoryMock) List(ctx context.Context, limit, offset int) ([]models.SavedNote, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SavedNote(nil), m.Created...), nil
}

func (m *SavedNoteRepositoryMock) ListByWord(ctx context.Context, word string) ([]models.SavedNote, error) {
	if m.ListByWordFunc != nil {
		return m.ListByWordFunc(ctx, word)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SavedNote
	for _, n := range m.Created {
		if n.Word == word {
			out = append(out, n)
		}
	}
	return out, nil
}

// Notes returns a copy of every created note.
func (m *SavedNoteRepositoryMock) Notes() []models.SavedNote {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SavedNote(nil), m.Created...)
}
