package services

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"aria/internal/config"
	"aria/internal/models"

	"github.com/fsnotify/fsnotify"
	"github.com/patrickmn/go-cache"
)

// ProviderService resolves which LLM endpoint serves a request. Providers are
// loaded from providers.json and hot-reloaded when the file changes, so an
// operator can rotate keys or disable a provider without a restart.
type ProviderService struct {
	mu        sync.RWMutex
	path      string
	providers []models.Provider
	cache     *cache.Cache
	watcher   *fsnotify.Watcher
}

// NewProviderService loads providers.json and starts watching it for changes.
func NewProviderService(path string) (*ProviderService, error) {
	s := &ProviderService{
		path:  path,
		cache: cache.New(5*time.Minute, 10*time.Minute),
	}

	if err := s.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️ [PROVIDERS] File watching disabled: %v", err)
		return s, nil
	}
	s.watcher = watcher

	// Watch the directory: editors replace files rather than writing in place.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		log.Printf("⚠️ [PROVIDERS] Failed to watch %s: %v", path, err)
		watcher.Close()
		s.watcher = nil
		return s, nil
	}

	go s.watchLoop()
	return s, nil
}

func (s *ProviderService) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Editors fire several events per save; the reload is cheap enough
			// to just run on each.
			if err := s.reload(); err != nil {
				log.Printf("⚠️ [PROVIDERS] Reload failed, keeping previous config: %v", err)
			} else {
				log.Printf("🔄 [PROVIDERS] Reloaded %s", s.path)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ [PROVIDERS] Watcher error: %v", err)
		}
	}
}

func (s *ProviderService) reload() error {
	cfg, err := config.LoadProviders(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.providers = cfg.Providers
	s.mu.Unlock()
	s.cache.Flush()
	return nil
}

// Providers returns a snapshot of the configured providers.
func (s *ProviderService) Providers() []models.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Provider, len(s.providers))
	copy(out, s.providers)
	return out
}

// ResolveLLMConfig picks the endpoint for a model override. An empty override
// returns the first enabled provider's default model. An unknown override
// falls back to the default rather than failing the turn; the caller records
// the requested model separately so the response stays honest about it.
func (s *ProviderService) ResolveLLMConfig(modelOverride string) (*models.LLMConfig, error) {
	cacheKey := "llm:" + modelOverride
	if cached, found := s.cache.Get(cacheKey); found {
		cfg := cached.(models.LLMConfig)
		return &cfg, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var defaultCfg *models.LLMConfig
	for _, p := range s.providers {
		if !p.Enabled {
			continue
		}
		if defaultCfg == nil {
			defaultCfg = &models.LLMConfig{
				BaseURL:    p.BaseURL,
				APIKey:     p.APIKey,
				Model:      p.DefaultModel,
				ProviderID: p.ID,
			}
		}
		if modelOverride == "" {
			break
		}
		if p.DefaultModel == modelOverride {
			cfg := models.LLMConfig{BaseURL: p.BaseURL, APIKey: p.APIKey, Model: modelOverride, ProviderID: p.ID}
			s.cache.Set(cacheKey, cfg, cache.DefaultExpiration)
			return &cfg, nil
		}
		for _, m := range p.Models {
			if m == modelOverride {
				cfg := models.LLMConfig{BaseURL: p.BaseURL, APIKey: p.APIKey, Model: modelOverride, ProviderID: p.ID}
				s.cache.Set(cacheKey, cfg, cache.DefaultExpiration)
				return &cfg, nil
			}
		}
	}

	if defaultCfg == nil {
		return nil, fmt.Errorf("no enabled LLM provider configured")
	}
	if modelOverride != "" {
		log.Printf("⚠️ [PROVIDERS] Unknown model %q, using default %s", modelOverride, defaultCfg.Model)
	}
	s.cache.Set(cacheKey, *defaultCfg, cache.DefaultExpiration)
	return defaultCfg, nil
}

// Close stops the file watcher.
func (s *ProviderService) Close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}
