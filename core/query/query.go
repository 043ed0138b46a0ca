// Package query parses the one-line search box syntax into a filter
// selection.
//
// A query is a sequence of terms separated by whitespace. Bare words form
// the search text; prefixed terms add facet values:
//
//	add epi16 tech:AVX2 family:SSE cpuid:avx512bw cat:Arithmetic ret:__m256i
//	category:"General Support" return:void
//
// Values containing spaces are written in double quotes.
package query

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/errors"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/filter"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/intrinsics"
)

const facetKey = `(?i)[a-z][a-z_]*:`

var facetPrefix = regexp.MustCompile(`^` + facetKey)

type queryGrammar struct {
	Terms []*term `parser:"@@*"`
}

type term struct {
	Facet *facetTerm `parser:"  @@"`
	Word  *string    `parser:"| @( String | Word )"`
}

type facetTerm struct {
	Key   string `parser:"@Facet"`
	Value string `parser:"@( String | Word )"`
}

// queryLexer tokenizes queries. Facet must precede Word so "tech:AVX2" is
// split into a key and a value rather than read as one word. Any key lexes
// as a facet; AddFacet rejects the ones it does not know.
var queryLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Facet", Pattern: facetKey},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Word", Pattern: `[^\s"]+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var queryParser = participle.MustBuild[queryGrammar](
	participle.Lexer(queryLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
)

// Parse turns a query string into a selection. Invalid input, such as an
// unterminated quote or a facet key with no value, yields a
// *errors.ValidationError.
func Parse(s string) (filter.Selection, error) {
	var sel filter.Selection
	s = strings.TrimSpace(s)
	if s == "" {
		return sel, nil
	}

	parsed, err := queryParser.ParseString("", s)
	if err != nil {
		return filter.Selection{}, &errors.ValidationError{
			Field:   "query",
			Value:   s,
			Message: err.Error(),
		}
	}

	var words []string
	for _, t := range parsed.Terms {
		if t.Word != nil {
			if *t.Word != "" {
				words = append(words, *t.Word)
			}
			continue
		}
		key := strings.TrimSuffix(t.Facet.Key, ":")
		if err := AddFacet(&sel, key, t.Facet.Value); err != nil {
			return filter.Selection{}, err
		}
	}
	sel.Search = strings.Join(words, " ")
	return sel, nil
}

// AddFacet adds one facet value to sel, normalizing it the same way the
// query syntax does. key is one of the facet names accepted by Parse.
func AddFacet(sel *filter.Selection, key, value string) error {
	key = strings.ToLower(key)
	if value == "" {
		return errors.NewValidation("query", key+": needs a value")
	}
	switch key {
	case "tech":
		sel.Techs = appendUnique(sel.Techs, intrinsics.NormalizeTech(value))
	case "family":
		sel.Techs = appendUnique(sel.Techs, intrinsics.FamilyLabel(intrinsics.NormalizeTech(value)))
	case "cpuid":
		sel.CPUIDs = appendUnique(sel.CPUIDs, intrinsics.NormalizeCPUID(strings.ToUpper(value)))
	case "cat", "category":
		sel.Categories = appendUnique(sel.Categories, value)
	case "ret", "return":
		sel.ReturnTypes = appendUnique(sel.ReturnTypes, value)
	default:
		return errors.NewValidation("query", "unknown facet "+key)
	}
	return nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// Format renders a selection back into query syntax. Parse(Format(sel))
// yields an equivalent selection.
func Format(sel filter.Selection) string {
	var parts []string
	if s := strings.TrimSpace(sel.Search); s != "" {
		for _, w := range strings.Fields(s) {
			parts = append(parts, quote(w))
		}
	}
	add := func(key string, values []string) {
		sorted := append([]string{}, values...)
		sort.Strings(sorted)
		for _, v := range sorted {
			parts = append(parts, key+":"+quote(v))
		}
	}
	add("tech", sel.Techs)
	add("cpuid", sel.CPUIDs)
	add("cat", sel.Categories)
	add("ret", sel.ReturnTypes)
	return strings.Join(parts, " ")
}

func quote(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\"") || looksLikeFacet(v) {
		return strconv.Quote(v)
	}
	return v
}

// looksLikeFacet reports whether a bare word would lex as a facet key.
func looksLikeFacet(v string) bool {
	return facetPrefix.MatchString(v)
}
