package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// FreePlanName is the plan every new organization starts on.
const FreePlanName = "Free"

// PlanDefinition describes one entry of the plan catalog. Feature keys are
// snake_case because viper folds keys to lower case.
type PlanDefinition struct {
	Name        string         `mapstructure:"name"`
	Description string         `mapstructure:"description"`
	Price       float64        `mapstructure:"price"`
	Features    map[string]any `mapstructure:"features"`
}

type PlanCatalog struct {
	Plans []PlanDefinition `mapstructure:"plans"`
}

func (c PlanCatalog) Find(name string) (PlanDefinition, bool) {
	for _, p := range c.Plans {
		if p.Name == name {
			return p, true
		}
	}
	return PlanDefinition{}, false
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: []PlanDefinition{
			{
				Name:        FreePlanName,
				Description: "Basic features for small teams",
				Price:       0,
				Features: map[string]any{
					"max_users":           1,
					"max_platforms":       1,
					"max_posts_per_month": 10,
					"analytics":           false,
					"custom_workflows":    false,
				},
			},
			{
				Name:        "Paid",
				Description: "Advanced features for growing teams",
				Price:       29.99,
				Features: map[string]any{
					"max_users":           10,
					"max_platforms":       5,
					"max_posts_per_month": 1000,
					"analytics":           true,
					"custom_workflows":    true,
				},
			},
		},
	}
}

type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog

	mu        sync.Mutex
	listeners []func(PlanCatalog)
}

// NewPlanCatalogHolder reads plans.yml from the usual config paths, or the
// file named by PLANS_CONFIG_FILE, and falls back to the default catalog.
func NewPlanCatalogHolder() (*PlanCatalogHolder, error) {
	return newPlanCatalogHolder(strings.TrimSpace(os.Getenv("PLANS_CONFIG_FILE")), true)
}

func newPlanCatalogHolder(path string, watch bool) (*PlanCatalogHolder, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("plans")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/tenantry")
		v.AddConfigPath(".")
	}

	holder := &PlanCatalogHolder{}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path == "" && os.IsNotExist(err)) {
			return nil, err
		}
		holder.current.Store(DefaultPlanCatalog())
		return holder, nil
	}

	var catalog PlanCatalog
	if err := v.Unmarshal(&catalog); err != nil {
		return nil, err
	}
	if err := ValidatePlanCatalog(catalog); err != nil {
		return nil, err
	}
	holder.current.Store(catalog)

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PlanCatalog
			if err := v.Unmarshal(&updated); err != nil {
				zap.L().Warn("plan catalog reload failed", zap.Error(err))
				return
			}
			if err := ValidatePlanCatalog(updated); err != nil {
				zap.L().Warn("invalid plan catalog ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			zap.L().Info("plan catalog reloaded", zap.String("file", e.Name))
			holder.notify(updated)
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

// OnChange registers fn to run after every accepted reload.
func (h *PlanCatalogHolder) OnChange(fn func(PlanCatalog)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

func (h *PlanCatalogHolder) notify(catalog PlanCatalog) {
	h.mu.Lock()
	listeners := append([]func(PlanCatalog){}, h.listeners...)
	h.mu.Unlock()
	for _, fn := range listeners {
		fn(catalog)
	}
}

func ValidatePlanCatalog(catalog PlanCatalog) error {
	if len(catalog.Plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	seen := make(map[string]struct{}, len(catalog.Plans))
	for _, p := range catalog.Plans {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return errors.New("plan name is required")
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate plan %q", name)
		}
		if p.Price < 0 {
			return fmt.Errorf("plan %q has negative price", name)
		}
		seen[name] = struct{}{}
	}
	if _, ok := seen[FreePlanName]; !ok {
		return fmt.Errorf("plan %q is required", FreePlanName)
	}
	return nil
}
