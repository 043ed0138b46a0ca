package render

import (
	"strings"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/intrinsics"
)

const indent = "    "

// Signature renders the prototype with types and parameter names styled.
func (s *Style) Signature(in *intrinsics.Intrinsic) string {
	params := make([]string, 0, len(in.Params))
	for _, p := range in.Params {
		switch {
		case p.Name == "":
			params = append(params, s.Type.Sprint(p.Type))
		case p.Type == "":
			params = append(params, s.Param.Sprint(p.Name))
		default:
			params = append(params, s.Type.Sprint(p.Type)+" "+s.Param.Sprint(p.Name))
		}
	}
	var b strings.Builder
	if in.ReturnType != "" {
		b.WriteString(s.Type.Sprint(in.ReturnType))
		b.WriteByte(' ')
	}
	b.WriteString(in.Name)
	b.WriteByte('(')
	b.WriteString(strings.Join(params, ", "))
	b.WriteByte(')')
	return b.String()
}

// Instructions lists "mnemonic form" per instruction, mnemonics lowercased.
func Instructions(in *intrinsics.Intrinsic) []string {
	out := make([]string, 0, len(in.Instructions))
	for _, ins := range in.Instructions {
		out = append(out, strings.TrimSpace(strings.ToLower(ins.Name)+" "+ins.Form))
	}
	return out
}

// Detail renders the full description of one intrinsic. Sections with no
// content are left out.
func (s *Style) Detail(in *intrinsics.Intrinsic) string {
	var b strings.Builder

	b.WriteString(s.Heading.Sprint("Synopsis"))
	b.WriteByte('\n')
	b.WriteString(indent + s.Signature(in) + "\n")
	if in.Header != "" {
		b.WriteString(indent + "#include <" + in.Header + ">\n")
	}
	if lines := Instructions(in); len(lines) > 0 {
		label := "Instruction: "
		if len(lines) > 1 {
			label = "Instructions: "
		}
		pad := strings.Repeat(" ", len(label))
		for n, line := range lines {
			if n == 0 {
				b.WriteString(indent + label + line + "\n")
			} else {
				b.WriteString(indent + pad + line + "\n")
			}
		}
	}
	if len(in.CPUIDs) > 0 {
		b.WriteString(indent + "CPUID Flags: " + strings.Join(in.CPUIDs, ", ") + "\n")
	}

	if in.Description != "" {
		b.WriteString("\n" + s.Heading.Sprint("Description") + "\n")
		b.WriteString(indentBlock(in.Description))
	}

	if in.Operation != "" {
		b.WriteString("\n" + s.Heading.Sprint("Operation") + "\n")
		b.WriteString(indentBlock(in.Operation))
	}
	return b.String()
}

func indentBlock(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			b.WriteByte('\n')
			continue
		}
		b.WriteString(indent + line + "\n")
	}
	return b.String()
}
