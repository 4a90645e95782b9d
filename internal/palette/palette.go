// Package palette filters the staff command palette by role and keywords.
package palette

import (
	"sort"
	"strings"

	"table1837/internal/domain"
)

// Visible reports whether role may see cmd. Commands without roles are public.
func Visible(cmd domain.Command, role string) bool {
	if len(cmd.Roles) == 0 {
		return true
	}
	for _, r := range cmd.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Filter returns the commands visible to role in which every query token
// appears in the label, category or a keyword. Declaration order is kept.
func Filter(commands []domain.Command, role, query string) []domain.Command {
	tokens := strings.Fields(strings.ToLower(query))
	out := make([]domain.Command, 0, len(commands))
	for _, cmd := range commands {
		if !Visible(cmd, role) {
			continue
		}
		if matchesAll(cmd, tokens) {
			out = append(out, cmd)
		}
	}
	return out
}

// Rank is Filter ordered by relevance: label hits weigh 10, keyword hits 3,
// category hits 2. Ties keep declaration order.
func Rank(commands []domain.Command, role, query string) []domain.Command {
	matched := Filter(commands, role, query)
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return matched
	}
	scores := make(map[string]int, len(matched))
	for _, cmd := range matched {
		scores[cmd.ID] = score(cmd, tokens)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return scores[matched[i].ID] > scores[matched[j].ID]
	})
	return matched
}

func matchesAll(cmd domain.Command, tokens []string) bool {
	for _, tok := range tokens {
		if !matches(cmd, tok) {
			return false
		}
	}
	return true
}

func matches(cmd domain.Command, tok string) bool {
	if strings.Contains(strings.ToLower(cmd.Label), tok) || strings.Contains(strings.ToLower(cmd.Category), tok) {
		return true
	}
	for _, kw := range cmd.Keywords {
		if strings.Contains(strings.ToLower(kw), tok) {
			return true
		}
	}
	return false
}

func score(cmd domain.Command, tokens []string) int {
	total := 0
	for _, tok := range tokens {
		if strings.Contains(strings.ToLower(cmd.Label), tok) {
			total += 10
		}
		for _, kw := range cmd.Keywords {
			if strings.Contains(strings.ToLower(kw), tok) {
				total += 3
			}
		}
		if strings.Contains(strings.ToLower(cmd.Category), tok) {
			total += 2
		}
	}
	return total
}

// Defaults is the built-in command set used when the venue config has none.
func Defaults() []domain.Command {
	admin := []string{"Manager", "Owner"}
	return []domain.Command{
		{ID: "nav-home", Label: "Go to Home", Category: "Navigation"},
		{ID: "nav-cocktails", Label: "View Cocktails", Category: "Navigation"},
		{ID: "nav-wine", Label: "View Wine List", Category: "Navigation"},
		{ID: "nav-86", Label: "View 86 List", Category: "Navigation", Shortcut: "Cmd+8"},
		{ID: "add-86", Label: "Add Item to 86 List", Category: "Quick Actions", Keywords: []string{"out", "unavailable", "finished"}},
		{ID: "nav-checklists", Label: "Open Checklists", Category: "Quick Actions", Keywords: []string{"opening", "closing", "prep"}},
		{ID: "add-cocktail", Label: "Add New Cocktail", Category: "Admin", Roles: admin},
		{ID: "add-wine", Label: "Add New Wine", Category: "Admin", Roles: admin},
		{ID: "edit-happy-hour", Label: "Edit Happy Hour Specials", Category: "Admin", Roles: admin},
		{ID: "view-costs", Label: "View Pour Costs", Category: "Admin", Shortcut: "Cmd+$", Keywords: []string{"margin", "pour"}, Roles: admin},
		{ID: "schedule-content", Label: "Schedule Content", Category: "Admin", Roles: admin},
	}
}
