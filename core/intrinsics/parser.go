package intrinsics

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/errors"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/xml"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/logging"
)

// Root attributes that identify an intrinsics database.
const (
	attrDate    = "date"
	attrVersion = "version"
)

// Load parses an intrinsics database from r. It fails with *errors.OpenError
// when r cannot be read or holds no XML document, and with
// *errors.FormatError when the document is not an intrinsics database.
// No partial result is ever returned.
func Load(r io.Reader) (*ParseResult, error) {
	return load(r, "")
}

// LoadBytes parses an in-memory database. name is used in error messages.
func LoadBytes(data []byte, name string) (*ParseResult, error) {
	return load(bytes.NewReader(data), name)
}

// LoadFile opens and parses the database at path.
func LoadFile(path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewOpen(path, err)
	}
	defer f.Close()
	return load(f, path)
}

func load(r io.Reader, name string) (*ParseResult, error) {
	plain, err := Decompress(r)
	if err != nil {
		return nil, errors.NewOpen(name, err)
	}

	doc, err := xml.ParseReader(plain)
	if err != nil {
		return nil, errors.NewOpen(name, err)
	}

	root := doc.Root()
	if root == nil {
		return nil, errors.NewOpen(name, fmt.Errorf("no XML document element"))
	}

	return parseRoot(root, name)
}

// parseRoot validates the root sniff attributes, visits every intrinsic and
// derives the facet lists.
func parseRoot(root *xml.Node, name string) (*ParseResult, error) {
	var missing []string
	for _, attr := range []string{attrDate, attrVersion} {
		if !root.HasAttr(attr) {
			missing = append(missing, attr)
		}
	}
	if len(missing) > 0 {
		return nil, errors.NewFormat(name, missing...)
	}

	elements := root.Children()
	result := &ParseResult{
		Version:    root.Attr(attrVersion),
		Date:       root.Attr(attrDate),
		Intrinsics: make([]Intrinsic, 0, len(elements)),
	}

	agg := newAggregate()
	empty := 0
	for n, el := range elements {
		in, contrib, err := parseIntrinsic(el)
		if err != nil {
			return nil, &errors.FormatError{
				Path:    name,
				Message: fmt.Sprintf("intrinsic #%d: %v; the whole file was rejected", n+1, err),
				Err:     err,
			}
		}
		if contrib.recognized == 0 {
			empty++
		}
		result.Intrinsics = append(result.Intrinsics, in)
		agg.fold(contrib)
	}

	result.Technologies = GroupTechnologies(agg.techs.list, agg.cpuids.list)
	result.Categories = agg.categories.sorted()
	result.ReturnTypes = agg.returnTypes.sorted()

	logging.Debug("intrinsics_parsed",
		"source", name,
		"version", result.Version,
		"date", result.Date,
		"intrinsics", len(result.Intrinsics),
		"technologies", len(result.Technologies),
		"cpuids", len(agg.cpuids.list),
		"categories", len(result.Categories),
		"empty_records", empty)

	return result, nil
}

// contribution is what one intrinsic adds to the document-wide facets.
type contribution struct {
	tech       string
	category   string
	returnType string
	cpuids     []string
	recognized int
}

// fieldHandler copies one child element into the intrinsic under construction.
type fieldHandler func(in *Intrinsic, field *xml.Node)

// fieldHandlers is the closed set of recognized child elements. Anything
// else is skipped so newer schema revisions still load.
var fieldHandlers = map[string]fieldHandler{
	"category": func(in *Intrinsic, f *xml.Node) {
		in.Category = strings.TrimSpace(f.Text())
	},
	"CPUID": func(in *Intrinsic, f *xml.Node) {
		in.addCPUID(NormalizeCPUID(strings.TrimSpace(f.Text())))
	},
	"return": func(in *Intrinsic, f *xml.Node) {
		in.ReturnType = f.Attr("type")
	},
	"parameter": func(in *Intrinsic, f *xml.Node) {
		in.Params = append(in.Params, Variable{
			Name: f.Attr("varname"),
			Type: f.Attr("type"),
		})
	},
	"description": func(in *Intrinsic, f *xml.Node) {
		in.Description = strings.TrimSpace(f.Text())
	},
	"operation": func(in *Intrinsic, f *xml.Node) {
		in.Operation = trimBlock(f.Text())
	},
	"instruction": func(in *Intrinsic, f *xml.Node) {
		in.Instructions = append(in.Instructions, Instruction{
			Name: f.Attr("name"),
			Form: f.Attr("form"),
			XED:  f.Attr("xed"),
		})
	},
	"header": func(in *Intrinsic, f *xml.Node) {
		in.Header = strings.TrimSpace(f.Text())
	},
}

// parseIntrinsic extracts one intrinsic element. It returns the record and
// the facts it contributes; the caller folds those into the aggregates.
func parseIntrinsic(el *xml.Node) (Intrinsic, contribution, error) {
	in := Intrinsic{
		Name: el.Attr("name"),
		Tech: NormalizeTech(el.Attr("tech")),
	}
	if in.Name == "" {
		return Intrinsic{}, contribution{}, fmt.Errorf("<%s> has no name attribute", el.Name())
	}
	if in.Tech == "" {
		return Intrinsic{}, contribution{}, fmt.Errorf("%s has no tech attribute", in.Name)
	}

	recognized := 0
	for _, field := range el.Children() {
		handle, ok := fieldHandlers[field.Name()]
		if !ok {
			continue
		}
		handle(&in, field)
		recognized++
	}

	return in, contribution{
		tech:       in.Tech,
		category:   in.Category,
		returnType: in.ReturnType,
		cpuids:     in.CPUIDs,
		recognized: recognized,
	}, nil
}

// trimBlock strips surrounding blank lines from pseudocode while keeping the
// indentation of its first line.
func trimBlock(s string) string {
	s = strings.TrimRight(s, " \t\r\n")
	for {
		nl := strings.IndexByte(s, '\n')
		if nl < 0 || strings.TrimSpace(s[:nl]) != "" {
			return s
		}
		s = s[nl+1:]
	}
}

// orderedSet keeps first-seen order and drops duplicates and empty values.
type orderedSet struct {
	seen map[string]bool
	list []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(v string) {
	if v == "" || s.seen[v] {
		return
	}
	s.seen[v] = true
	s.list = append(s.list, v)
}

func (s *orderedSet) sorted() []string {
	out := append([]string{}, s.list...)
	sort.Strings(out)
	return out
}

// aggregate accumulates document-wide facets for one parse invocation.
type aggregate struct {
	techs       *orderedSet
	cpuids      *orderedSet
	categories  *orderedSet
	returnTypes *orderedSet
}

func newAggregate() *aggregate {
	return &aggregate{
		techs:       newOrderedSet(),
		cpuids:      newOrderedSet(),
		categories:  newOrderedSet(),
		returnTypes: newOrderedSet(),
	}
}

func (a *aggregate) fold(c contribution) {
	a.techs.add(c.tech)
	a.categories.add(c.category)
	a.returnTypes.add(c.returnType)
	for _, cpuid := range c.cpuids {
		a.cpuids.add(cpuid)
	}
}
