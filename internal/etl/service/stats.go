package service

import (
	"sort"

	auditdomain "github.com/carebase/planmart/internal/audit/domain"
)

type docResult struct {
	planFacts    int
	serviceFacts int
	dateKey      int
}

// runStats tracks one run's counters. Each run owns its own instance, so two
// overlapping invocations could never bleed counts into each other.
type runStats struct {
	processed    int
	loaded       int
	failed       int
	planFacts    int
	serviceFacts int
	dateKeys     map[int]struct{}
}

func newRunStats() *runStats {
	return &runStats{dateKeys: make(map[int]struct{})}
}

func (s *runStats) recordLoaded(res docResult) {
	s.processed++
	s.loaded++
	s.planFacts += res.planFacts
	s.serviceFacts += res.serviceFacts
	if res.dateKey != 0 {
		s.dateKeys[res.dateKey] = struct{}{}
	}
}

func (s *runStats) recordFailed() {
	s.processed++
	s.failed++
}

func (s *runStats) status() string {
	if s.failed == 0 {
		return auditdomain.StatusSuccess
	}
	return auditdomain.StatusPartialSuccess
}

func (s *runStats) touchedDateKeys() []int {
	keys := make([]int, 0, len(s.dateKeys))
	for key := range s.dateKeys {
		keys = append(keys, key)
	}
	sort.Ints(keys)
	return keys
}
