package intrinsics

import (
	"sort"
	"strings"
)

const (
	// FamilySuffix is appended to umbrella technology labels.
	FamilySuffix = " Family"

	// OtherFamily collects CPUID flags that belong to no curated family.
	OtherFamily = "Other"

	// allSuffix marks a vendor tech tag that covers a whole family.
	allSuffix = "_ALL"

	// vendorAVX512 is the vendor spelling of AVX-512 CPUID flags.
	vendorAVX512 = "AVX512"
)

// umbrellaTechs are vendor tech tags that name a family without the _ALL suffix.
var umbrellaTechs = map[string]bool{
	"AVX-512": true,
	"AMX":     true,
}

// familyPrefixes is tested in order; more specific prefixes come first.
var familyPrefixes = []string{
	"AMX",
	"AVX-512",
	"AVX",
	"SSE",
	"MMX",
}

// familyExceptions maps flags whose names do not carry their family prefix.
var familyExceptions = map[string]string{
	"SSSE3": "SSE",
	"F16C":  "AVX",
	"FMA":   "AVX",
}

// precedence is the curated presentation order for technology labels and
// CPUID flags. Anything absent sorts alphabetically after every entry.
var precedence = []string{
	"MMX Family", "MMX",

	"SSE Family", "SSE", "SSE2", "SSE3", "SSSE3", "SSE4.1", "SSE4.2",

	"AVX Family", "AVX", "AVX2", "FMA", "F16C",
	"AVX_VNNI", "AVX_VNNI_INT8", "AVX_VNNI_INT16", "AVX_IFMA", "AVX_NE_CONVERT",

	"AVX-512 Family", "AVX-512",
	"AVX-512F", "AVX-512CD", "AVX-512ER", "AVX-512PF",
	"AVX-512BW", "AVX-512DQ", "AVX-512VL",
	"AVX-512IFMA52", "AVX-512VBMI", "AVX-512_VBMI2", "AVX-512_VNNI",
	"AVX-512_BITALG", "AVX-512VPOPCNTDQ", "AVX-512_BF16", "AVX-512_FP16",
	"AVX-512_VP2INTERSECT", "AVX-512_4FMAPS", "AVX-512_4VNNIW",

	"AMX Family", "AMX", "AMX-TILE", "AMX-INT8", "AMX-BF16", "AMX-FP16", "AMX-COMPLEX",

	"KNC",
	"SVML",
	"Other",
}

var precedenceRank = func() map[string]int {
	m := make(map[string]int, len(precedence))
	for i, label := range precedence {
		m[label] = i
	}
	return m
}()

// NormalizeTech turns a raw vendor tech tag into a technology label:
// "SSE_ALL" becomes "SSE Family", "AVX-512" becomes "AVX-512 Family", and
// every other tag is returned unchanged.
func NormalizeTech(raw string) string {
	if strings.HasSuffix(raw, allSuffix) {
		return strings.TrimSuffix(raw, allSuffix) + FamilySuffix
	}
	if umbrellaTechs[raw] {
		return raw + FamilySuffix
	}
	return raw
}

// NormalizeCPUID rewrites the vendor "AVX512xxx" spelling to "AVX-512xxx".
func NormalizeCPUID(raw string) string {
	if strings.HasPrefix(raw, vendorAVX512) {
		return "AVX-512" + strings.TrimPrefix(raw, vendorAVX512)
	}
	return raw
}

// Superfamily returns the bare family a normalized CPUID flag belongs to,
// or OtherFamily. The result is total: every flag maps to exactly one name.
func Superfamily(cpuid string) string {
	for _, prefix := range familyPrefixes {
		if strings.HasPrefix(cpuid, prefix) {
			return prefix
		}
	}
	if family, ok := familyExceptions[cpuid]; ok {
		return family
	}
	return OtherFamily
}

// FamilyLabel turns a bare superfamily name into its presentation label.
func FamilyLabel(name string) string {
	if name == OtherFamily || strings.HasSuffix(name, FamilySuffix) {
		return name
	}
	return name + FamilySuffix
}

// IsFamily reports whether a label names an umbrella family.
func IsFamily(label string) bool {
	return strings.HasSuffix(label, FamilySuffix)
}

// Rank returns the curated precedence of a label; unknown labels share the
// rank after the last curated entry.
func Rank(label string) int {
	if r, ok := precedenceRank[label]; ok {
		return r
	}
	return len(precedence)
}

// Less orders labels by precedence, then alphabetically.
func Less(a, b string) bool {
	ra, rb := Rank(a), Rank(b)
	if ra != rb {
		return ra < rb
	}
	return a < b
}

// SortLabels sorts labels in place by Less.
func SortLabels(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		return Less(labels[i], labels[j])
	})
}

// GroupTechnologies builds the technology hierarchy from the observed tech
// labels and the full observed CPUID vocabulary. Every distinct flag lands
// in exactly one family; tech labels that collect no flags are still emitted
// with an empty member list.
func GroupTechnologies(techs, cpuids []string) []Technology {
	members := make(map[string][]string)
	seen := make(map[string]bool, len(cpuids))

	for _, cpuid := range cpuids {
		if cpuid == "" || seen[cpuid] {
			continue
		}
		seen[cpuid] = true
		family := FamilyLabel(Superfamily(cpuid))
		members[family] = append(members[family], cpuid)
	}

	for _, tech := range techs {
		if tech == "" {
			continue
		}
		if _, ok := members[tech]; !ok {
			members[tech] = nil
		}
	}

	labels := make([]string, 0, len(members))
	for label := range members {
		labels = append(labels, label)
	}
	SortLabels(labels)

	out := make([]Technology, 0, len(labels))
	for _, label := range labels {
		flags := append([]string{}, members[label]...)
		SortLabels(flags)
		out = append(out, Technology{Family: label, Techs: flags})
	}
	return out
}
