// Package intrinsics loads the vendor intrinsics database into an immutable
// in-memory snapshot and derives the technology hierarchy used for faceting.
//
// A snapshot is produced once per load by Load or LoadFile. Nothing mutates
// it afterwards, so any number of readers may share it without locking.
package intrinsics

import (
	"strings"
)

// Variable is one parameter of an intrinsic.
type Variable struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Instruction is one machine instruction form an intrinsic expands to.
type Instruction struct {
	Name string `json:"name"`
	Form string `json:"form"`
	XED  string `json:"xed"`
}

// Intrinsic is a single vendor intrinsic function.
type Intrinsic struct {
	Name         string        `json:"name"`
	Tech         string        `json:"tech"`
	Category     string        `json:"category"`
	CPUIDs       []string      `json:"cpuids"`
	ReturnType   string        `json:"ret_type"`
	Params       []Variable    `json:"parms"`
	Description  string        `json:"description"`
	Operation    string        `json:"operation"`
	Instructions []Instruction `json:"instructions"`
	Header       string        `json:"header"`
}

// Technology is a derived family label and the CPUID flags that roll up
// under it. Leaf technologies have no members.
type Technology struct {
	Family string   `json:"family"`
	Techs  []string `json:"techs"`
}

// ParseResult is the snapshot handed from parsing to presentation.
type ParseResult struct {
	Version      string       `json:"version"`
	Date         string       `json:"date"`
	Intrinsics   []Intrinsic  `json:"intrinsics"`
	Technologies []Technology `json:"technologies"`
	Categories   []string     `json:"categories"`
	ReturnTypes  []string     `json:"return_types"`
}

// HasCPUID reports whether the intrinsic requires the given flag.
func (i *Intrinsic) HasCPUID(cpuid string) bool {
	for _, c := range i.CPUIDs {
		if c == cpuid {
			return true
		}
	}
	return false
}

// addCPUID appends a flag unless it is already present.
func (i *Intrinsic) addCPUID(cpuid string) bool {
	if cpuid == "" || i.HasCPUID(cpuid) {
		return false
	}
	i.CPUIDs = append(i.CPUIDs, cpuid)
	return true
}

// ID is the display identity of an intrinsic: its name followed by the
// first instruction mnemonic, with ",.." when more forms exist. Names alone
// are not unique across the database; IDs are.
func (i *Intrinsic) ID() string {
	if len(i.Instructions) == 0 {
		return i.Name
	}
	mnemonic := strings.ToLower(i.Instructions[0].Name)
	if len(i.Instructions) > 1 {
		mnemonic += ",.."
	}
	return i.Name + " (" + mnemonic + ")"
}

// Signature renders the C prototype, e.g. "__m128 _mm_add_ps(__m128 a, __m128 b)".
func (i *Intrinsic) Signature() string {
	var b strings.Builder
	if i.ReturnType != "" {
		b.WriteString(i.ReturnType)
		b.WriteByte(' ')
	}
	b.WriteString(i.Name)
	b.WriteByte('(')
	for n, p := range i.Params {
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteByte(')')
	return b.String()
}

func (v Variable) String() string {
	return strings.TrimSpace(v.Type + " " + v.Name)
}

// Len returns the number of intrinsics in the snapshot.
func (r *ParseResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Intrinsics)
}

// Lookup finds an intrinsic by ID, falling back to the first one with a
// matching name.
func (r *ParseResult) Lookup(idOrName string) (*Intrinsic, bool) {
	if r == nil {
		return nil, false
	}
	for n := range r.Intrinsics {
		if r.Intrinsics[n].ID() == idOrName {
			return &r.Intrinsics[n], true
		}
	}
	for n := range r.Intrinsics {
		if r.Intrinsics[n].Name == idOrName {
			return &r.Intrinsics[n], true
		}
	}
	return nil, false
}

// Family returns the technology entry with the given label.
func (r *ParseResult) Family(label string) (*Technology, bool) {
	if r == nil {
		return nil, false
	}
	for n := range r.Technologies {
		if r.Technologies[n].Family == label {
			return &r.Technologies[n], true
		}
	}
	return nil, false
}

// FamilyOf returns the label of the family a CPUID flag was grouped under.
func (r *ParseResult) FamilyOf(cpuid string) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, t := range r.Technologies {
		for _, member := range t.Techs {
			if member == cpuid {
				return t.Family, true
			}
		}
	}
	return "", false
}

// CPUIDs returns every distinct CPUID flag in hierarchy order.
func (r *ParseResult) CPUIDs() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, t := range r.Technologies {
		out = append(out, t.Techs...)
	}
	return out
}
