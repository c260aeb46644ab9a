package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/AlexKimmel/ratequota/internal/ratelimit"
)

// Request is one raw entry of a scenario's request list. Fields stay
// untyped until ValidateRequest so bad input gets a precise message.
type Request struct {
	User any
	Time any
}

// Scenario is a policy plus an ordered list of requests to replay against it.
type Scenario struct {
	Policy   ratelimit.QuotaPolicy
	Requests []Request
}

type scenarioFile struct {
	Config   *PolicyFile `yaml:"config" json:"config"`
	Requests any         `yaml:"requests" json:"requests"`
}

// LoadScenario reads a scenario file:
//
//	{"config": {"default": {...}, "users": {...}}, "requests": [{"user": "alice", "time": 0.0}]}
//
// A missing file yields an error wrapping fs.ErrNotExist; anything malformed
// wraps ErrInvalidConfig.
func LoadScenario(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario file: %w", err)
	}

	var f scenarioFile
	if err := unmarshal(path, b, &f); err != nil {
		return nil, err
	}
	if f.Config == nil {
		return nil, fmt.Errorf("%w: scenario file must contain a 'config' section", ErrInvalidConfig)
	}
	if f.Requests == nil {
		return nil, fmt.Errorf("%w: scenario file must contain a 'requests' section", ErrInvalidConfig)
	}

	policy, err := f.Config.QuotaPolicy()
	if err != nil {
		return nil, err
	}

	items, ok := f.Requests.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: 'requests' must be a list", ErrInvalidConfig)
	}
	reqs := make([]Request, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: request %d must be an object", ErrInvalidConfig, i+1)
		}
		reqs = append(reqs, Request{User: m["user"], Time: m["time"]})
	}

	return &Scenario{Policy: policy, Requests: reqs}, nil
}

// ValidateRequest checks that user is a non-empty string and time is a finite number.
func ValidateRequest(r Request) (string, float64, error) {
	if r.User == nil {
		return "", 0, fmt.Errorf("%w: request must contain 'user'", ErrInvalidRequest)
	}
	if r.Time == nil {
		return "", 0, fmt.Errorf("%w: request must contain 'time'", ErrInvalidRequest)
	}

	user, ok := r.User.(string)
	if !ok || user == "" {
		return "", 0, fmt.Errorf("%w: user ID must be a non-empty string", ErrInvalidRequest)
	}

	t, err := toFloat(r.Time)
	if err != nil {
		return "", 0, fmt.Errorf("%w: time: %v", ErrInvalidRequest, err)
	}
	return user, t, nil
}

func toFloat(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint64:
		f = float64(x)
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", x)
		}
		f = p
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not finite", f)
	}
	return f, nil
}
