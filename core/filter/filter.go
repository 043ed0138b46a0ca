// Package filter narrows a loaded intrinsics snapshot by search text and
// facet selections.
//
// Facets combine with AND; values inside one facet combine with OR. An
// empty facet does not constrain the result.
package filter

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/intrinsics"
)

// Selection is the user's current narrowing state.
type Selection struct {
	Search      string   `json:"search,omitempty" toml:"search,omitempty"`
	Techs       []string `json:"techs,omitempty" toml:"techs,omitempty"`
	CPUIDs      []string `json:"cpuids,omitempty" toml:"cpuids,omitempty"`
	Categories  []string `json:"categories,omitempty" toml:"categories,omitempty"`
	ReturnTypes []string `json:"return_types,omitempty" toml:"return_types,omitempty"`
}

// IsZero reports whether the selection matches everything.
func (s Selection) IsZero() bool {
	return strings.TrimSpace(s.Search) == "" &&
		len(s.Techs) == 0 && len(s.CPUIDs) == 0 &&
		len(s.Categories) == 0 && len(s.ReturnTypes) == 0
}

// Matcher is a Selection resolved against one snapshot. Build it once with
// Compile and reuse it for every intrinsic. A Matcher is not safe for
// concurrent use because case folding keeps transformer state.
type Matcher struct {
	search      string
	fold        cases.Caser
	techActive  bool
	techs       set
	cpuids      set
	categories  set
	returnTypes set
}

type set map[string]struct{}

func newSet(values []string) set {
	if len(values) == 0 {
		return nil
	}
	s := make(set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}

// Compile resolves sel against res. Selected family labels are expanded to
// their member CPUID flags so that picking "AVX Family" matches everything
// requiring AVX2, FMA and friends.
func Compile(res *intrinsics.ParseResult, sel Selection) *Matcher {
	m := &Matcher{
		fold:        cases.Fold(),
		techActive:  len(sel.Techs) > 0 || len(sel.CPUIDs) > 0,
		techs:       newSet(sel.Techs),
		cpuids:      newSet(sel.CPUIDs),
		categories:  newSet(sel.Categories),
		returnTypes: newSet(sel.ReturnTypes),
	}
	m.search = m.fold.String(strings.TrimSpace(sel.Search))

	for _, label := range sel.Techs {
		fam, ok := res.Family(label)
		if !ok {
			continue
		}
		if m.cpuids == nil && len(fam.Techs) > 0 {
			m.cpuids = make(set, len(fam.Techs))
		}
		for _, flag := range fam.Techs {
			m.cpuids[flag] = struct{}{}
		}
	}
	return m
}

// Match reports whether in passes every active facet.
func (m *Matcher) Match(in *intrinsics.Intrinsic) bool {
	if m.search != "" && !strings.Contains(m.fold.String(in.ID()), m.search) {
		return false
	}
	if m.techActive && !m.matchTech(in) {
		return false
	}
	if m.categories != nil && !m.categories.has(in.Category) {
		return false
	}
	if m.returnTypes != nil && !m.returnTypes.has(in.ReturnType) {
		return false
	}
	return true
}

func (m *Matcher) matchTech(in *intrinsics.Intrinsic) bool {
	if m.techs.has(in.Tech) {
		return true
	}
	for _, c := range in.CPUIDs {
		if m.cpuids.has(c) {
			return true
		}
	}
	return false
}

// Apply returns the intrinsics of res that match sel, in snapshot order.
// The returned pointers alias the snapshot and must not be modified.
func Apply(res *intrinsics.ParseResult, sel Selection) []*intrinsics.Intrinsic {
	if res == nil {
		return nil
	}
	m := Compile(res, sel)
	out := make([]*intrinsics.Intrinsic, 0, len(res.Intrinsics))
	for n := range res.Intrinsics {
		if m.Match(&res.Intrinsics[n]) {
			out = append(out, &res.Intrinsics[n])
		}
	}
	return out
}

// Counts holds how many intrinsics carry each facet value.
type Counts struct {
	Techs       map[string]int `json:"techs"`
	CPUIDs      map[string]int `json:"cpuids"`
	Categories  map[string]int `json:"categories"`
	ReturnTypes map[string]int `json:"return_types"`
}

// Count tallies facet values over a set of intrinsics.
func Count(list []*intrinsics.Intrinsic) Counts {
	c := Counts{
		Techs:       make(map[string]int),
		CPUIDs:      make(map[string]int),
		Categories:  make(map[string]int),
		ReturnTypes: make(map[string]int),
	}
	for _, in := range list {
		c.Techs[in.Tech]++
		for _, flag := range in.CPUIDs {
			c.CPUIDs[flag]++
		}
		if in.Category != "" {
			c.Categories[in.Category]++
		}
		if in.ReturnType != "" {
			c.ReturnTypes[in.ReturnType]++
		}
	}
	return c
}

// CountSelection tallies facet values over the intrinsics matching sel.
func CountSelection(res *intrinsics.ParseResult, sel Selection) Counts {
	return Count(Apply(res, sel))
}
