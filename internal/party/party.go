// Package party aggregates individual votes into party-level agreement and
// cohesion tables. It is independent of the decomposition.
package party

import (
	"fmt"
	"sort"
	"strings"
)

// Group is one canonical party with the labels it is known by.
type Group struct {
	Code    string
	Name    string
	Aliases []string
}

// minFuzzyLen keeps two-letter codes such as "NI" or "ID" out of substring
// matching, where they would hit ordinary words.
const minFuzzyLen = 3

type alias struct {
	needle string
	code   string
	order  int
}

// Table maps free-text group labels onto canonical party codes. The order of
// the groups passed to NewTable is their left-to-right display order.
type Table struct {
	groups []Group
	exact  map[string]string
	fuzzy  []alias
	rank   map[string]int
}

// NewTable builds a Table. Codes must be unique and non-empty.
func NewTable(groups []Group) (*Table, error) {
	t := &Table{
		groups: make([]Group, 0, len(groups)),
		exact:  make(map[string]string),
		rank:   make(map[string]int, len(groups)),
	}
	for i, g := range groups {
		code := strings.TrimSpace(g.Code)
		if code == "" {
			return nil, fmt.Errorf("party group %d has no code", i)
		}
		if _, dup := t.rank[code]; dup {
			return nil, fmt.Errorf("party code %q listed twice", code)
		}
		t.rank[code] = i
		t.groups = append(t.groups, g)
		t.exact[code] = code
		for _, a := range append([]string{code}, g.Aliases...) {
			a = strings.TrimSpace(a)
			if a == "" {
				continue
			}
			if _, taken := t.exact[a]; !taken {
				t.exact[a] = code
			}
			if len(a) >= minFuzzyLen {
				t.fuzzy = append(t.fuzzy, alias{needle: strings.ToLower(a), code: code, order: i})
			}
		}
	}
	// Longer aliases are tried first so "EPP-ED" is not claimed by "EPP"
	// inside an unrelated label.
	sort.SliceStable(t.fuzzy, func(a, b int) bool {
		if len(t.fuzzy[a].needle) != len(t.fuzzy[b].needle) {
			return len(t.fuzzy[a].needle) > len(t.fuzzy[b].needle)
		}
		return t.fuzzy[a].order < t.fuzzy[b].order
	})
	return t, nil
}

// Canonical resolves a label by exact match first, then by case-insensitive
// substring match against the known aliases.
func (t *Table) Canonical(label string) (string, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", false
	}
	if code, ok := t.exact[label]; ok {
		return code, true
	}
	lower := strings.ToLower(label)
	for _, a := range t.fuzzy {
		if strings.Contains(lower, a.needle) {
			return a.code, true
		}
	}
	return "", false
}

// Rank is the left-to-right position of a code, or -1 if unknown.
func (t *Table) Rank(code string) int {
	if r, ok := t.rank[code]; ok {
		return r
	}
	return -1
}

// Codes lists the canonical codes in display order.
func (t *Table) Codes() []string {
	codes := make([]string, len(t.groups))
	for i, g := range t.groups {
		codes[i] = g.Code
	}
	return codes
}

// Name returns the display name of a code, falling back to the code.
func (t *Table) Name(code string) string {
	if r, ok := t.rank[code]; ok && t.groups[r].Name != "" {
		return t.groups[r].Name
	}
	return code
}
