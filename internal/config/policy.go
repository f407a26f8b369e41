package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"
	"time"

	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/raphaelgruber/reelimport/internal/provider"
	"github.com/raphaelgruber/reelimport/internal/quality"
	"gopkg.in/yaml.v3"
)

// Policy holds the tunables operators change without a redeploy.
type Policy struct {
	Quality       quality.Thresholds         `yaml:"quality"`
	Collaboration CollaborationPolicy        `yaml:"collaboration"`
	Providers     map[string]provider.Limits `yaml:"providers"`
	Discovery     DiscoveryPolicy            `yaml:"discovery"`
	Queue         QueuePolicy                `yaml:"queue"`
}

// CollaborationPolicy bounds which credits form collaborations:
// the top billed cast plus every crew member whose job is listed.
type CollaborationPolicy struct {
	TopCast     int      `yaml:"top_cast"`
	KeyCrewJobs []string `yaml:"key_crew_jobs"`
}

// DiscoveryPolicy controls paging of the primary catalog.
type DiscoveryPolicy struct {
	PageDelay     time.Duration `yaml:"page_delay"`
	ListPageDelay time.Duration `yaml:"list_page_delay"`
	MaxPages      int           `yaml:"max_pages"` // TMDb refuses pages beyond 500
	SortBy        string        `yaml:"sort_by"`
}

// QueuePolicy controls retries of queued jobs.
type QueuePolicy struct {
	MaxAttempts    map[models.JobKind]int `yaml:"max_attempts"`
	BackoffInitial time.Duration          `yaml:"backoff_initial"`
	BackoffMax     time.Duration          `yaml:"backoff_max"`
}

// Attempts returns the attempt ceiling for kind.
func (q QueuePolicy) Attempts(kind models.JobKind) int {
	if n := q.MaxAttempts[kind]; n > 0 {
		return n
	}
	return 3
}

// DefaultKeyCrewJobs are the crew jobs that count as department heads.
var DefaultKeyCrewJobs = []string{
	"Director",
	"Producer",
	"Screenplay",
	"Writer",
	"Director of Photography",
	"Original Music Composer",
	"Editor",
}

// DefaultPolicy returns the built-in policy used when no file is present.
func DefaultPolicy() Policy {
	return Policy{
		Quality: quality.DefaultThresholds(),
		Collaboration: CollaborationPolicy{
			TopCast:     20,
			KeyCrewJobs: append([]string(nil), DefaultKeyCrewJobs...),
		},
		Providers: map[string]provider.Limits{
			provider.NameTMDb: {
				Rate: 4, Burst: 20, Cooldown: 10 * time.Second, MaxRetries: 3,
				InitialBackoff: 500 * time.Millisecond, MaxBackoff: 10 * time.Second, Timeout: 15 * time.Second,
			},
			provider.NameOMDb: {
				Rate: 1, Burst: 5, Cooldown: 30 * time.Second, MaxRetries: 2,
				InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, Timeout: 15 * time.Second,
			},
			provider.NameScrape: {
				Rate: 0.5, Burst: 1, Cooldown: time.Minute, MaxRetries: 2,
				InitialBackoff: 2 * time.Second, MaxBackoff: 30 * time.Second, Timeout: 30 * time.Second,
			},
		},
		Discovery: DiscoveryPolicy{
			PageDelay:     2 * time.Second,
			ListPageDelay: 5 * time.Second,
			MaxPages:      500,
			SortBy:        "popularity.desc",
		},
		Queue: QueuePolicy{
			MaxAttempts: map[models.JobKind]int{
				models.JobKindDiscoveryPage: 5,
				models.JobKindMovieDetail:   3,
				models.JobKindListPage:      5,
				models.JobKindCeremony:      5,
			},
			BackoffInitial: 5 * time.Second,
			BackoffMax:     10 * time.Minute,
		},
	}
}

// LoadPolicy reads the YAML policy file on top of the defaults.
// A missing file yields the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return Policy{}, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

func (p *Policy) validate() error {
	if p.Collaboration.TopCast < 0 {
		return fmt.Errorf("collaboration.top_cast must be >= 0, got %d", p.Collaboration.TopCast)
	}
	if p.Discovery.MaxPages <= 0 {
		return fmt.Errorf("discovery.max_pages must be > 0, got %d", p.Discovery.MaxPages)
	}
	defaults := DefaultPolicy().Providers
	for name, lim := range defaults {
		if _, ok := p.Providers[name]; !ok {
			p.Providers[name] = lim
		}
	}
	for name, lim := range p.Providers {
		if lim.Rate <= 0 || lim.Burst <= 0 {
			return fmt.Errorf("providers.%s: rate and burst must be positive", name)
		}
	}
	return nil
}

// PolicyStore holds the current policy and swaps it atomically on reload.
type PolicyStore struct {
	path    string
	current atomic.Pointer[Policy]
}

// NewPolicyStore loads the policy at path.
func NewPolicyStore(path string) (*PolicyStore, error) {
	p, err := LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	s := &PolicyStore{path: path}
	s.current.Store(&p)
	return s, nil
}

// StaticPolicy wraps a fixed policy, for tests and embedded use.
func StaticPolicy(p Policy) *PolicyStore {
	s := &PolicyStore{}
	s.current.Store(&p)
	return s
}

// Load returns the current policy.
func (s *PolicyStore) Load() Policy {
	return *s.current.Load()
}

// Reload re-reads the policy file. The previous policy stays active on error.
func (s *PolicyStore) Reload() (Policy, error) {
	p, err := LoadPolicy(s.path)
	if err != nil {
		return s.Load(), err
	}
	s.current.Store(&p)
	return p, nil
}
