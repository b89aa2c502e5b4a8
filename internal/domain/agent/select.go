package agent

import (
	"slices"
	"strings"
)

// Select picks the agent that should take a new chat.
//
// Only available agents under capacity are candidates. Candidates are ordered
// by ActiveChats ascending (stable, so ties keep input order). When hint is
// non-empty the least busy candidate with an expertise tag containing the
// hint (case-insensitive) wins; otherwise, or if nobody matches, the least
// busy candidate wins. The second return value is false when no agent is
// eligible. Select never modifies agents.
func Select(agents []Agent, hint string) (string, bool) {
	candidates := make([]*Agent, 0, len(agents))
	for i := range agents {
		if agents[i].Eligible() {
			candidates = append(candidates, &agents[i])
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	slices.SortStableFunc(candidates, func(a, b *Agent) int {
		return a.ActiveChats - b.ActiveChats
	})

	if hint = strings.ToLower(strings.TrimSpace(hint)); hint != "" {
		for _, c := range candidates {
			if c.HasExpertise(hint) {
				return c.ID, true
			}
		}
	}
	return candidates[0].ID, true
}

// HasExpertise reports whether any tag contains hint, ignoring case.
func (a *Agent) HasExpertise(hint string) bool {
	hint = strings.ToLower(hint)
	for _, tag := range a.ExpertiseTags {
		if strings.Contains(strings.ToLower(tag), hint) {
			return true
		}
	}
	return false
}
