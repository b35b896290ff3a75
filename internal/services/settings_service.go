package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"memit/internal/logging"
	"memit/internal/models"
	"memit/internal/repositories"
)

// SecretStore holds credential values outside the database.
type SecretStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// SettingsStore is the single source of user preferences shared by the
// background handlers and every session controller.
type SettingsStore interface {
	// Get returns the stored values for keys; with no keys it returns every
	// known setting. Unset keys are absent from the result.
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	Set(ctx context.Context, values map[string]string) error
	Remove(ctx context.Context, keys ...string) error
	// OnChange registers fn for change notifications and returns its
	// unsubscribe function. Notifications arrive in write order; fn must not
	// write to the store synchronously.
	OnChange(fn func(models.SettingsChanges)) func()
	Snapshot(ctx context.Context) (*models.Settings, error)
	InitDefaults(ctx context.Context) error
}

type settingsStore struct {
	repo    repositories.SettingRepository
	secrets SecretStore
	log     *zap.Logger

	// writeMu serialises read-diff-write so change sets never interleave.
	writeMu sync.Mutex
	// notifyMu is taken before writeMu is released and held while
	// subscribers run.
	notifyMu sync.Mutex

	subMu  sync.RWMutex
	subs   map[uint64]func(models.SettingsChanges)
	nextID uint64
}

func NewSettingsStore(repo repositories.SettingRepository, secrets SecretStore) SettingsStore {
	return &settingsStore{
		repo:    repo,
		secrets: secrets,
		log:     logging.Named("settings"),
		subs:    make(map[uint64]func(models.SettingsChanges)),
	}
}

func (s *settingsStore) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	if len(keys) == 0 {
		keys = models.AllSettingKeys
	}
	plain, secret := splitKeys(keys)

	out := make(map[string]string, len(keys))
	if len(plain) > 0 {
		values, err := s.repo.Get(ctx, plain...)
		if err != nil {
			return nil, fmt.Errorf("read settings: %w", err)
		}
		for k, v := range values {
			out[k] = v
		}
	}
	for _, key := range secret {
		v, err := s.secrets.Get(key)
		if err != nil {
			return nil, fmt.Errorf("read secret %s: %w", key, err)
		}
		if v != "" {
			out[key] = v
		}
	}
	return out, nil
}

func (s *settingsStore) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	for key := range values {
		if strings.TrimSpace(key) == "" {
			return errors.New("setting key is required")
		}
	}

	changes, err := s.write(ctx, values)
	if err != nil {
		return err
	}
	defer s.notifyMu.Unlock()
	s.notify(changes)
	return nil
}

func (s *settingsStore) write(ctx context.Context, values map[string]string) (models.SettingsChanges, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	current, err := s.Get(ctx, keys...)
	if err != nil {
		return nil, err
	}

	plain := make(map[string]string)
	for key, value := range values {
		if models.IsSecretKey(key) {
			if err := s.secrets.Set(key, value); err != nil {
				return nil, fmt.Errorf("write secret %s: %w", key, err)
			}
			continue
		}
		plain[key] = value
	}
	if len(plain) > 0 {
		if err := s.repo.Upsert(ctx, plain); err != nil {
			return nil, fmt.Errorf("write settings: %w", err)
		}
	}

	changes := make(models.SettingsChanges)
	for key, value := range values {
		if old := current[key]; old != value {
			changes[key] = models.SettingChange{OldValue: old, NewValue: value}
		}
	}
	s.notifyMu.Lock()
	return changes, nil
}

func (s *settingsStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	changes, err := s.remove(ctx, keys)
	if err != nil {
		return err
	}
	defer s.notifyMu.Unlock()
	s.notify(changes)
	return nil
}

func (s *settingsStore) remove(ctx context.Context, keys []string) (models.SettingsChanges, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.Get(ctx, keys...)
	if err != nil {
		return nil, err
	}

	plain, secret := splitKeys(keys)
	for _, key := range secret {
		if err := s.secrets.Delete(key); err != nil {
			return nil, fmt.Errorf("delete secret %s: %w", key, err)
		}
	}
	if len(plain) > 0 {
		if err := s.repo.Delete(ctx, plain...); err != nil {
			return nil, fmt.Errorf("delete settings: %w", err)
		}
	}

	changes := make(models.SettingsChanges)
	for key, old := range current {
		changes[key] = models.SettingChange{OldValue: old}
	}
	s.notifyMu.Lock()
	return changes, nil
}

func (s *settingsStore) OnChange(fn func(models.SettingsChanges)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// notify runs callbacks under notifyMu, outside writeMu. Each callback gets
// its own copy of the change set.
func (s *settingsStore) notify(changes models.SettingsChanges) {
	if len(changes) == 0 {
		return
	}

	s.subMu.RLock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(models.SettingsChanges), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.RUnlock()

	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	s.log.Debug("settings changed", zap.Strings("keys", keys), zap.Int("subscribers", len(fns)))

	for _, fn := range fns {
		cp := make(models.SettingsChanges, len(changes))
		for k, v := range changes {
			cp[k] = v
		}
		fn(cp)
	}
}

func (s *settingsStore) Snapshot(ctx context.Context) (*models.Settings, error) {
	values, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return models.SettingsFromValues(values), nil
}

// InitDefaults seeds first-run values and migrates a backend URL that still
// points at the sign-in site.
func (s *settingsStore) InitDefaults(ctx context.Context) error {
	current, err := s.Get(ctx, models.KeyTheme, models.KeyModelID, models.KeyBackendURL, models.KeyAuthURL)
	if err != nil {
		return err
	}

	updates := make(map[string]string)
	if current[models.KeyTheme] == "" {
		updates[models.KeyTheme] = models.DefaultTheme
	}
	if current[models.KeyModelID] == "" {
		updates[models.KeyModelID] = models.DefaultModelID
	}
	backend := models.NormalizeBaseURL(current[models.KeyBackendURL])
	if backend == "" || backend == models.DefaultAuthURL {
		updates[models.KeyBackendURL] = models.DefaultBackendURL
	}
	if current[models.KeyAuthURL] == "" {
		updates[models.KeyAuthURL] = models.DefaultAuthURL
	}

	if len(updates) == 0 {
		return nil
	}
	s.log.Info("initialising settings", zap.Int("count", len(updates)))
	return s.Set(ctx, updates)
}

func splitKeys(keys []string) (plain, secret []string) {
	for _, k := range keys {
		if models.IsSecretKey(k) {
			secret = append(secret, k)
		} else {
			plain = append(plain, k)
		}
	}
	return plain, secret
}
