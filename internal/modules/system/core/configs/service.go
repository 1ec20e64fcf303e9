package configs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/shiv669/echo-core-go/internal/config"
	"github.com/shiv669/echo-core-go/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service owns the FullConfig row in the options table and a cached
// in-memory copy of it.
type Service struct {
	db  *gorm.DB
	mu  sync.RWMutex
	cfg *config.FullConfig
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Get hands back the cached config, hitting the database only on a
// cold start or after Invalidate.
func (s *Service) Get() (*config.FullConfig, error) {
	if cfg := s.cached(); cfg != nil {
		return cfg, nil
	}
	return s.load()
}

func (s *Service) cached() *config.FullConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Service) load() (*config.FullConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, found, err := s.fetchStored()
	if err != nil {
		return nil, err
	}

	base := config.DefaultFullConfig()
	if !found {
		s.cfg = &base
		_ = s.persist(&base)
		return s.cfg, nil
	}

	// Older deployments may have stored retired keys; the section
	// UnmarshalJSON implementations absorb them.
	if err := json.Unmarshal([]byte(stored), &base); err != nil {
		return nil, err
	}
	s.cfg = &base
	return s.cfg, nil
}

func (s *Service) fetchStored() (string, bool, error) {
	var row models.OptionModel
	if err := s.db.Where("name = ?", configKey).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return row.Value, true, nil
}

// Patch overlays the submitted sections onto the current config,
// validates the result and persists it.
func (s *Service) Patch(sections map[string]json.RawMessage) (*config.FullConfig, error) {
	if err := validateSectionKeys(sections); err != nil {
		return nil, err
	}

	current, err := s.Get()
	if err != nil {
		return nil, err
	}
	merged, err := mergePartial(current, sections)
	if err != nil {
		return nil, err
	}

	next := config.DefaultFullConfig()
	if err := remarshal(merged, &next); err != nil {
		return nil, err
	}
	if shouldEnableAnalysis(sections) &&
		next.AI.EnableAnalysis &&
		!hasEnabledAIProvider(next.AI.Providers) {
		return nil, errAnalysisProviderNotEnabled
	}

	s.mu.Lock()
	s.cfg = &next
	s.mu.Unlock()

	return &next, s.persist(&next)
}

func validateSectionKeys(sections map[string]json.RawMessage) error {
	for key := range sections {
		if _, ok := sectionKeys[normalizeOptionKey(key)]; !ok {
			return fmt.Errorf("%w: %s", errUnknownSection, key)
		}
	}
	return nil
}

// mergePartial overlays each submitted section onto the current config tree.
func mergePartial(current *config.FullConfig, sections map[string]json.RawMessage) (map[string]interface{}, error) {
	merged := map[string]interface{}{}
	if err := remarshal(current, &merged); err != nil {
		return nil, err
	}

	for key, raw := range sections {
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var section interface{}
		if err := json.Unmarshal(raw, &section); err != nil {
			return nil, err
		}
		canonical := normalizeOptionKey(key)
		if prev, ok := merged[canonical]; ok {
			section = deepMergeJSON(prev, section)
		}
		merged[canonical] = section
	}
	return merged, nil
}

// remarshal round-trips src through JSON into dst.
func remarshal(src, dst interface{}) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func (s *Service) persist(snapshot *config.FullConfig) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	row := models.OptionModel{Name: configKey, Value: string(data)}
	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}
	return s.db.Clauses(onConflict).Create(&row).Error
}

// Invalidate drops the cached config so the next Get reads the
// database again.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = nil
}
