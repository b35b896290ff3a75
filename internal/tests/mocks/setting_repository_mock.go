package mocks

import (
	"context"
	"sync"
)

// SettingRepositoryMock falls back to an in-memory map when a func field is nil.
type SettingRepositoryMock struct {
	GetFunc    func(ctx context.Context, keys ...string) (map[string]string, error)
	UpsertFunc func(ctx context.Context, values map[string]string) error
	DeleteFunc func(ctx context.Context, keys ...string) error

	mu     sync.Mutex
	Values map[string]string
}

func NewSettingRepositoryMock(initial map[string]string) *SettingRepositoryMock {
	values := make(map[string]string, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &SettingRepositoryMock{Values: values}
}

func (m *SettingRepositoryMock) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, keys...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string)
	if len(keys) == 0 {
		for k, v := range m.Values {
			out[k] = v
		}
		return out, nil
	}
	for _, k := range keys {
		if v, ok := m.Values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *SettingRepositoryMock) Upsert(ctx context.Context, values map[string]string) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, values)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Values == nil {
		m.Values = make(map[string]string)
	}
	for k, v := range values {
		m.Values[k] = v
	}
	return nil
}

func (m *SettingRepositoryMock) Delete(ctx context.Context, keys ...string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, keys...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.Values, k)
	}
	return nil
}

// Value reads one stored value.
func (m *SettingRepositoryMock) Value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Values[key]
	return v, ok
}

