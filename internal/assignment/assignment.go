package assignment

import (
	"sort"
	"strings"

	"github.com/secops-portal/backend/internal/models"
)

type candidate struct {
	ID   string
	Load int
}

// PickAgent selects the next agent for a rule. loads holds the number of
// requests currently assigned to each agent; it is only consulted by the
// least_loaded strategy. The bool result is false when the rule cannot route.
func PickAgent(rule models.RoutingRule, loads map[string]int) (string, bool) {
	if !rule.IsActive {
		return "", false
	}
	users := NormalizeUsers(rule.AssignedUsers)
	if len(users) == 0 {
		return "", false
	}

	switch rule.Strategy {
	case models.StrategyLeastLoaded:
		return pickLeastLoaded(users, loads), true
	default:
		return pickRoundRobin(users, rule.LastAssignedAgent), true
	}
}

func pickRoundRobin(users []string, last *string) string {
	sorted := append([]string(nil), users...)
	sort.Strings(sorted)
	if last == nil {
		return sorted[0]
	}
	idx := sort.SearchStrings(sorted, *last)
	if idx < len(sorted) && sorted[idx] == *last {
		idx++
	}
	return sorted[idx%len(sorted)]
}

func pickLeastLoaded(users []string, loads map[string]int) string {
	candidates := make([]candidate, 0, len(users))
	for _, u := range users {
		candidates = append(candidates, candidate{ID: u, Load: loads[u]})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Load == candidates[j].Load {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].Load < candidates[j].Load
	})
	return candidates[0].ID
}

// NormalizeUsers trims ids, drops blanks and removes duplicates while keeping
// first-seen order.
func NormalizeUsers(users []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(users))
	for _, u := range users {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// NormalizeRule applies defaults to a rule before it is stored.
func NormalizeRule(rule models.RoutingRule) models.RoutingRule {
	rule.ServiceType = strings.TrimSpace(rule.ServiceType)
	rule.AssignedUsers = NormalizeUsers(rule.AssignedUsers)
	rule.Strategy = strings.ToLower(strings.TrimSpace(rule.Strategy))
	if rule.Strategy == "" {
		rule.Strategy = models.StrategyRoundRobin
	}
	return rule
}
