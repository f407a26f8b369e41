package service

import (
	"slices"
	"strings"

	"github.com/raphaelgruber/reelimport/internal/config"
	"github.com/raphaelgruber/reelimport/internal/models"
)

// SignificantMembers returns the person ids that take part in
// collaborations: the TopCast lowest billed cast plus every crew member
// whose job is a key crew job. Each id appears once, cast first.
func SignificantMembers(c models.MovieCandidate, p config.CollaborationPolicy) []int {
	cast := slices.Clone(c.Cast)
	slices.SortStableFunc(cast, func(a, b models.CastMember) int { return a.Order - b.Order })
	if len(cast) > p.TopCast {
		cast = cast[:p.TopCast]
	}

	seen := make(map[int]bool)
	var ids []int
	add := func(id int) {
		if id > 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, m := range cast {
		add(m.TMDbID)
	}
	for _, m := range c.Crew {
		if isKeyJob(m.Job, p.KeyCrewJobs) {
			add(m.TMDbID)
		}
	}
	return ids
}

func isKeyJob(job string, keyJobs []string) bool {
	for _, k := range keyJobs {
		if strings.EqualFold(job, k) {
			return true
		}
	}
	return false
}

// BuildCollaborations pairs every two significant members of the movie.
// keep filters out persons that were not stored; nil keeps everyone.
// k members yield k*(k-1)/2 pairs.
func BuildCollaborations(c models.MovieCandidate, p config.CollaborationPolicy, keep func(personID int) bool) []models.Collaboration {
	var members []int
	for _, id := range SignificantMembers(c, p) {
		if keep == nil || keep(id) {
			members = append(members, id)
		}
	}
	year := c.Year()
	pairs := make([]models.Collaboration, 0, len(members)*(len(members)-1)/2)
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			pairs = append(pairs, models.NewCollaboration(members[i], members[j], c.TMDbID, year))
		}
	}
	return pairs
}
