package analytics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carbonscope-lab/carbonscope/internal/core/cache"
	"gopkg.in/yaml.v3"
)

// PolicySet maps dataset kinds to cache configs. Policies are loaded once at
// startup from *.yaml files in a directory; datasets without a policy file
// use the defaults.
type PolicySet struct {
	defaults cache.Config
	policies map[string]cache.Config
}

// rawPolicy is the on-disk YAML shape.
type rawPolicy struct {
	Dataset          string `yaml:"dataset"`
	TTL              string `yaml:"ttl"`
	RefreshThreshold string `yaml:"refresh_threshold"`
	Strategy         string `yaml:"strategy"`
}

// DefaultPolicies returns a set that answers defaults for every dataset.
// A zero RefreshThreshold is derived as 20% of the TTL, so refresh kicks in
// once 80% of an entry's lifetime has elapsed.
func DefaultPolicies(defaults cache.Config) *PolicySet {
	if defaults.Strategy == "" {
		defaults.Strategy = cache.StrategyLRU
	}
	if defaults.RefreshThreshold <= 0 && defaults.TTL > 0 {
		defaults.RefreshThreshold = defaults.TTL / 5
	}
	return &PolicySet{defaults: defaults, policies: make(map[string]cache.Config)}
}

// LoadPolicies eagerly reads every policy file in dir. A missing directory is
// valid (zero policies configured); a malformed file is a startup error.
func LoadPolicies(dir string, defaults cache.Config) (*PolicySet, error) {
	set := DefaultPolicies(defaults)

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache policy dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cache policy path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading cache policy dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading policy file %s: %w", path, err)
		}

		var raw rawPolicy
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing policy file %s: %w", path, err)
		}
		if raw.Dataset == "" {
			continue // skip empty / comment-only files
		}
		if _, exists := set.policies[raw.Dataset]; exists {
			return nil, fmt.Errorf("policy %q: duplicate dataset (check multiple YAML files)", raw.Dataset)
		}

		cfg, err := raw.toConfig(set.defaults)
		if err != nil {
			return nil, fmt.Errorf("policy file %s: %w", path, err)
		}
		set.policies[raw.Dataset] = cfg
	}
	return set, nil
}

func (r rawPolicy) toConfig(defaults cache.Config) (cache.Config, error) {
	cfg := defaults

	if r.TTL != "" {
		ttl, err := time.ParseDuration(r.TTL)
		if err != nil {
			return cache.Config{}, fmt.Errorf("invalid ttl %q: %w", r.TTL, err)
		}
		if ttl <= 0 {
			return cache.Config{}, fmt.Errorf("ttl must be positive, got %q", r.TTL)
		}
		cfg.TTL = ttl
		cfg.RefreshThreshold = ttl / 5
	}

	if r.RefreshThreshold != "" {
		threshold, err := time.ParseDuration(r.RefreshThreshold)
		if err != nil {
			return cache.Config{}, fmt.Errorf("invalid refresh_threshold %q: %w", r.RefreshThreshold, err)
		}
		if threshold < 0 || threshold >= cfg.TTL {
			return cache.Config{}, fmt.Errorf("refresh_threshold %q must be within [0, ttl)", r.RefreshThreshold)
		}
		cfg.RefreshThreshold = threshold
	}

	if r.Strategy != "" {
		if !cache.ValidStrategy(r.Strategy) {
			return cache.Config{}, fmt.Errorf("unsupported eviction strategy %q", r.Strategy)
		}
		cfg.Strategy = r.Strategy
	}
	return cfg, nil
}

// For returns the cache config for a dataset kind.
func (p *PolicySet) For(dataset string) cache.Config {
	if cfg, ok := p.policies[dataset]; ok {
		return cfg
	}
	return p.defaults
}

// Datasets lists every dataset with an explicit policy.
func (p *PolicySet) Datasets() []string {
	out := make([]string, 0, len(p.policies))
	for dataset := range p.policies {
		out = append(out, dataset)
	}
	return out
}
