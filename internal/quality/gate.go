// Package quality decides whether a candidate becomes a full record,
// a soft placeholder, or is rejected.
package quality

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/raphaelgruber/reelimport/internal/models"
)

// Outcome is the gate's verdict.
type Outcome string

const (
	Full   Outcome = "full"
	Soft   Outcome = "soft"
	Reject Outcome = "reject"
)

// Decision is an outcome plus a human-readable reason for anything but Full.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// Status maps a non-reject decision to the stored import status.
func (d Decision) Status() models.ImportStatus {
	if d.Outcome == Full {
		return models.ImportStatusFull
	}
	return models.ImportStatusSoft
}

// Thresholds configure the gate. Movies need a poster and release date (when
// required) plus either enough votes or enough popularity to be Full.
type Thresholds struct {
	MinVoteCount       int     `yaml:"min_vote_count"`
	MinPopularity      float64 `yaml:"min_popularity"`
	RequirePoster      bool    `yaml:"require_poster"`
	RequireReleaseDate bool    `yaml:"require_release_date"`
	RejectAdult        bool    `yaml:"reject_adult"`

	MinPersonPopularity  float64 `yaml:"min_person_popularity"`
	RequirePersonImage   bool    `yaml:"require_person_image"`
	KeyRoleMinPopularity float64 `yaml:"key_role_min_popularity"`
	KeyRoleRequireImage  bool    `yaml:"key_role_require_image"`
}

// DefaultThresholds returns the built-in thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinVoteCount:         5,
		MinPopularity:        1.0,
		RequirePoster:        true,
		RequireReleaseDate:   true,
		RejectAdult:          true,
		MinPersonPopularity:  0.5,
		RequirePersonImage:   false,
		KeyRoleMinPopularity: 0,
		KeyRoleRequireImage:  false,
	}
}

// Gate evaluates candidates against thresholds that can be swapped at runtime.
type Gate struct {
	thresholds atomic.Pointer[Thresholds]
}

// NewGate creates a gate with the given thresholds.
func NewGate(t Thresholds) *Gate {
	g := &Gate{}
	g.Update(t)
	return g
}

// Update replaces the thresholds for subsequent evaluations.
func (g *Gate) Update(t Thresholds) {
	g.thresholds.Store(&t)
}

// Thresholds returns the active thresholds.
func (g *Gate) Thresholds() Thresholds {
	return *g.thresholds.Load()
}

// EvaluateMovie is total: every candidate maps to exactly one outcome.
func (g *Gate) EvaluateMovie(c models.MovieCandidate) Decision {
	t := g.Thresholds()

	if strings.TrimSpace(c.Title) == "" {
		return Decision{Outcome: Reject, Reason: "missing title"}
	}
	if c.Adult && t.RejectAdult {
		return Decision{Outcome: Reject, Reason: "adult content"}
	}

	var missing []string
	if t.RequirePoster && empty(c.PosterPath) {
		missing = append(missing, "no poster")
	}
	if t.RequireReleaseDate && empty(c.ReleaseDate) {
		missing = append(missing, "no release date")
	}
	votes, popularity := 0, 0.0
	if c.VoteCount != nil {
		votes = *c.VoteCount
	}
	if c.Popularity != nil {
		popularity = *c.Popularity
	}
	if votes < t.MinVoteCount && popularity < t.MinPopularity {
		missing = append(missing, fmt.Sprintf("low engagement (votes=%d, popularity=%.1f)", votes, popularity))
	}

	if len(missing) == 0 {
		return Decision{Outcome: Full}
	}
	return Decision{Outcome: Soft, Reason: strings.Join(missing, "; ")}
}

// EvaluatePerson applies the full bar to peripheral crew and the relaxed bar
// to key-role persons. Key-role persons are never rejected so that the
// credits and collaborations referencing them resolve.
func (g *Gate) EvaluatePerson(p models.PersonCandidate, keyRole bool) Decision {
	t := g.Thresholds()

	if strings.TrimSpace(p.Name) == "" {
		return Decision{Outcome: Reject, Reason: "missing name"}
	}

	popularity := 0.0
	if p.Popularity != nil {
		popularity = *p.Popularity
	}
	hasImage := !empty(p.ProfilePath)

	if keyRole {
		if popularity >= t.KeyRoleMinPopularity && (hasImage || !t.KeyRoleRequireImage) {
			return Decision{Outcome: Full}
		}
		return Decision{Outcome: Soft, Reason: "key role below relaxed bar"}
	}

	if popularity < t.MinPersonPopularity {
		return Decision{Outcome: Reject, Reason: fmt.Sprintf("popularity %.2f below %.2f", popularity, t.MinPersonPopularity)}
	}
	if t.RequirePersonImage && !hasImage {
		return Decision{Outcome: Reject, Reason: "no profile image"}
	}
	return Decision{Outcome: Full}
}

func empty(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
