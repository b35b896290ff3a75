package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"memit/internal/assets"
	"memit/internal/models"
)

// ModelCatalogService exposes the selectable models grouped by provider.
type ModelCatalogService interface {
	Startup(ctx context.Context) error
	ListModelGroups() ([]models.LLMModelGroup, error)
	GetModel(modelKey string) (*models.LLMModel, error)
}

type modelCatalogService struct {
	ctx  context.Context
	data []byte

	mu            sync.RWMutex
	providerOrder []models.Provider
	providerNames map[models.Provider]string
	byProvider    map[models.Provider][]string
	models        map[string]models.LLMModel
}

type rawModelFile struct {
	Providers []rawProvider `json:"providers"`
}

type rawProvider struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	NeedsAPIKey bool       `json:"needsApiKey"`
	Models      []rawModel `json:"models"`
}

type rawModel struct {
	DisplayName string `json:"displayName"`
	APIName     string `json:"apiName"`
}

// NewModelCatalogService reads the embedded catalog. Pass data to override it.
func NewModelCatalogService(data []byte) ModelCatalogService {
	if data == nil {
		data = assets.ModelsData
	}
	return &modelCatalogService{
		data:          data,
		providerNames: make(map[models.Provider]string),
		byProvider:    make(map[models.Provider][]string),
		models:        make(map[string]models.LLMModel),
	}
}

func (s *modelCatalogService) Startup(ctx context.Context) error {
	s.ctx = ctx

	var parsed rawModelFile
	if err := json.Unmarshal(s.data, &parsed); err != nil {
		return fmt.Errorf("parse models asset: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.providerOrder = s.providerOrder[:0]
	for _, provider := range parsed.Providers {
		providerID := models.Provider(strings.TrimSpace(provider.ID))
		if !providerID.Valid() {
			return fmt.Errorf("unknown provider %q in models asset", provider.ID)
		}
		providerName := strings.TrimSpace(provider.DisplayName)
		if providerName == "" {
			providerName = string(providerID)
		}
		s.providerNames[providerID] = providerName
		s.providerOrder = append(s.providerOrder, providerID)

		for _, mdl := range provider.Models {
			apiName := strings.TrimSpace(mdl.APIName)
			if apiName == "" {
				continue
			}
			ref := models.ModelRef{Provider: providerID, Name: apiName}
			key := ref.String()
			if _, dup := s.models[key]; !dup {
				s.byProvider[providerID] = append(s.byProvider[providerID], key)
			}
			s.models[key] = models.LLMModel{
				Key:          key,
				DisplayName:  strings.TrimSpace(mdl.DisplayName),
				APIName:      apiName,
				ProviderID:   providerID,
				ProviderName: providerName,
				NeedsAPIKey:  provider.NeedsAPIKey,
			}
		}
	}
	return nil
}

// ListModelGroups keeps catalog order within each provider.
func (s *modelCatalogService) ListModelGroups() ([]models.LLMModelGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]models.LLMModelGroup, 0, len(s.providerOrder))
	for _, providerID := range s.providerOrder {
		keys := s.byProvider[providerID]
		group := models.LLMModelGroup{
			ProviderID:   providerID,
			ProviderName: s.providerNames[providerID],
			Models:       make([]models.LLMModel, 0, len(keys)),
		}
		for _, key := range keys {
			group.Models = append(group.Models, s.models[key])
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// GetModel accepts namespaced ids and legacy unprefixed ones.
func (s *modelCatalogService) GetModel(modelKey string) (*models.LLMModel, error) {
	modelKey = strings.TrimSpace(modelKey)
	if modelKey == "" {
		return nil, fmt.Errorf("model key is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	mdl, ok := s.models[models.ParseModelRef(modelKey).String()]
	if !ok {
		return nil, fmt.Errorf("model %s not found", modelKey)
	}
	return &mdl, nil
}
