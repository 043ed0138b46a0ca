// Package host reports which intrinsics the running CPU can execute.
package host

import (
	"sort"

	"github.com/klauspost/cpuid/v2"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/intrinsics"
)

// featureIDs maps normalized CPUID flag labels to detectable features.
// Flags missing from this table are never reported as supported.
var featureIDs = map[string]cpuid.FeatureID{
	"MMX":        cpuid.MMX,
	"SSE":        cpuid.SSE,
	"SSE2":       cpuid.SSE2,
	"SSE3":       cpuid.SSE3,
	"SSSE3":      cpuid.SSSE3,
	"SSE4.1":     cpuid.SSE4,
	"SSE4.2":     cpuid.SSE42,
	"AVX":        cpuid.AVX,
	"AVX2":       cpuid.AVX2,
	"FMA":        cpuid.FMA3,
	"F16C":       cpuid.F16C,
	"AVX_VNNI":   cpuid.AVXVNNI,
	"POPCNT":     cpuid.POPCNT,
	"LZCNT":      cpuid.LZCNT,
	"BMI1":       cpuid.BMI1,
	"BMI2":       cpuid.BMI2,
	"ADX":        cpuid.ADX,
	"AES":        cpuid.AESNI,
	"PCLMULQDQ":  cpuid.CLMUL,
	"SHA":        cpuid.SHA,
	"RDRAND":     cpuid.RDRAND,
	"RDSEED":     cpuid.RDSEED,
	"GFNI":       cpuid.GFNI,
	"VAES":       cpuid.VAES,
	"VPCLMULQDQ": cpuid.VPCLMULQDQ,
	"RTM":        cpuid.RTM,
	"CLDEMOTE":   cpuid.CLDEMOTE,
	"MOVDIRI":    cpuid.MOVDIRI,
	"MOVDIR64B":  cpuid.MOVDIR64B,
	"SERIALIZE":  cpuid.SERIALIZE,
	"WAITPKG":    cpuid.WAITPKG,
	"TSXLDTRK":   cpuid.TSXLDTRK,
	"ENQCMD":     cpuid.ENQCMD,

	"AVX-512F":             cpuid.AVX512F,
	"AVX-512CD":            cpuid.AVX512CD,
	"AVX-512ER":            cpuid.AVX512ER,
	"AVX-512PF":            cpuid.AVX512PF,
	"AVX-512BW":            cpuid.AVX512BW,
	"AVX-512DQ":            cpuid.AVX512DQ,
	"AVX-512VL":            cpuid.AVX512VL,
	"AVX-512IFMA52":        cpuid.AVX512IFMA,
	"AVX-512VBMI":          cpuid.AVX512VBMI,
	"AVX-512_VBMI2":        cpuid.AVX512VBMI2,
	"AVX-512_VNNI":         cpuid.AVX512VNNI,
	"AVX-512_BITALG":       cpuid.AVX512BITALG,
	"AVX-512VPOPCNTDQ":     cpuid.AVX512VPOPCNTDQ,
	"AVX-512_BF16":         cpuid.AVX512BF16,
	"AVX-512_FP16":         cpuid.AVX512FP16,
	"AVX-512_VP2INTERSECT": cpuid.AVX512VP2INTERSECT,

	"AMX-TILE": cpuid.AMXTILE,
	"AMX-INT8": cpuid.AMXINT8,
	"AMX-BF16": cpuid.AMXBF16,
}

// Host is the set of CPUID flags the running CPU supports.
type Host struct {
	Brand     string `json:"brand"`
	Vendor    string `json:"vendor"`
	supported map[string]bool
}

// Detect inspects the running CPU.
func Detect() *Host {
	h := &Host{
		Brand:     cpuid.CPU.BrandName,
		Vendor:    cpuid.CPU.VendorString,
		supported: make(map[string]bool),
	}
	for label, id := range featureIDs {
		if cpuid.CPU.Supports(id) {
			h.supported[label] = true
		}
	}
	return h
}

// New returns a host that supports exactly the given flags.
func New(flags ...string) *Host {
	h := &Host{supported: make(map[string]bool, len(flags))}
	for _, f := range flags {
		h.supported[intrinsics.NormalizeCPUID(f)] = true
	}
	return h
}

// Known reports whether flag can be detected at all.
func Known(flag string) bool {
	_, ok := featureIDs[flag]
	return ok
}

// Supports reports whether the CPU has flag. known is false for flags the
// host cannot detect at all, such as Knights Corner extensions.
func (h *Host) Supports(flag string) (supported, known bool) {
	if h == nil {
		return false, Known(flag)
	}
	return h.supported[flag], Known(flag) || h.supported[flag]
}

// SupportsAll reports whether every flag the intrinsic requires is present.
// An intrinsic that lists no flags runs anywhere.
func (h *Host) SupportsAll(in *intrinsics.Intrinsic) bool {
	for _, flag := range in.CPUIDs {
		if ok, _ := h.Supports(flag); !ok {
			return false
		}
	}
	return true
}

// Filter keeps the intrinsics the CPU can execute, preserving order.
func (h *Host) Filter(list []*intrinsics.Intrinsic) []*intrinsics.Intrinsic {
	out := make([]*intrinsics.Intrinsic, 0, len(list))
	for _, in := range list {
		if h.SupportsAll(in) {
			out = append(out, in)
		}
	}
	return out
}

// Flags returns the supported flags in presentation order.
func (h *Host) Flags() []string {
	if h == nil {
		return nil
	}
	out := make([]string, 0, len(h.supported))
	for f := range h.supported {
		out = append(out, f)
	}
	sort.Strings(out)
	intrinsics.SortLabels(out)
	return out
}
