package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/AlexKimmel/ratequota/internal/ratelimit"
)

// BucketSpec is the on-disk form of a bucket config. Pointers tell a
// missing field apart from an explicit zero.
type BucketSpec struct {
	Capacity   *float64 `yaml:"capacity" json:"capacity"`
	RefillRate *float64 `yaml:"refill_rate" json:"refill_rate"`
}

// PolicyFile is the on-disk form of a quota policy:
//
//	default: {capacity: 5, refill_rate: 1.0}
//	users:
//	  premium: {capacity: 8, refill_rate: 4.0}
type PolicyFile struct {
	Default *BucketSpec           `yaml:"default" json:"default"`
	Users   map[string]BucketSpec `yaml:"users" json:"users"`
}

func (s BucketSpec) bucketConfig() (ratelimit.BucketConfig, bool) {
	if s.Capacity == nil || s.RefillRate == nil {
		return ratelimit.BucketConfig{}, false
	}
	return ratelimit.BucketConfig{Capacity: *s.Capacity, RefillRate: *s.RefillRate}, true
}

// QuotaPolicy checks required fields and value ranges and builds the policy.
func (f *PolicyFile) QuotaPolicy() (ratelimit.QuotaPolicy, error) {
	if f == nil || f.Default == nil {
		return ratelimit.QuotaPolicy{}, fmt.Errorf("%w: config must contain a 'default' section", ErrInvalidConfig)
	}
	def, ok := f.Default.bucketConfig()
	if !ok {
		return ratelimit.QuotaPolicy{}, fmt.Errorf("%w: default config must contain 'capacity' and 'refill_rate'", ErrInvalidConfig)
	}

	// sorted so the first reported error does not depend on map order
	names := make([]string, 0, len(f.Users))
	for name := range f.Users {
		names = append(names, name)
	}
	sort.Strings(names)

	users := make(map[string]ratelimit.BucketConfig, len(f.Users))
	for _, name := range names {
		if name == "" {
			return ratelimit.QuotaPolicy{}, fmt.Errorf("%w: user ID must be a non-empty string", ErrInvalidConfig)
		}
		c, ok := f.Users[name].bucketConfig()
		if !ok {
			return ratelimit.QuotaPolicy{}, fmt.Errorf("%w: user '%s' config must contain 'capacity' and 'refill_rate'", ErrInvalidConfig, name)
		}
		users[name] = c
	}

	p := ratelimit.QuotaPolicy{Default: def, Users: users}
	if err := p.Validate(); err != nil {
		return ratelimit.QuotaPolicy{}, err
	}
	return p, nil
}

// LoadPolicy reads a standalone policy file (YAML, or JSON by extension).
func LoadPolicy(path string) (ratelimit.QuotaPolicy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ratelimit.QuotaPolicy{}, fmt.Errorf("policy file: %w", err)
	}
	var f PolicyFile
	if err := unmarshal(path, b, &f); err != nil {
		return ratelimit.QuotaPolicy{}, err
	}
	return f.QuotaPolicy()
}
