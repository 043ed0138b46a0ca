package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/errors"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/filter"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/intrinsics"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/query"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/snapshot"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/sqlite"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/xml"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/api"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/host"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/logging"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/render"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/session"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/tui"
)

const (
	idColumn   = 40
	techColumn = 20
)

// InfoCmd shows the loaded database version and counts.
type InfoCmd struct{}

// Run executes the info command.
func (c *InfoCmd) Run(e *env) error {
	res, err := e.load()
	if err != nil {
		return err
	}
	info, _ := e.loaded.Info()

	h := host.Detect()
	supported := len(h.Filter(all(res)))

	row := func(label, value string) {
		fmt.Fprintf(e.out, "%s %s\n", e.style.Heading.Sprint(render.Pad(label+":", 14)), value)
	}
	row("Data file", info.Path)
	row("Version", fmt.Sprintf("%s (%s)", res.Version, res.Date))
	row("Intrinsics", render.Count(res.Len()))
	row("Technologies", fmt.Sprintf("%s (%s CPUID flags)", render.Count(len(res.Technologies)), render.Count(len(res.CPUIDs()))))
	row("Categories", render.Count(len(res.Categories)))
	row("Return types", render.Count(len(res.ReturnTypes)))
	row("Loaded from", fmt.Sprintf("%s in %dms", info.Source, info.DurationMS))
	row("Snapshot", info.Key)
	if h.Brand != "" {
		row("Host", fmt.Sprintf("%s, %s intrinsics supported", h.Brand, render.Count(supported)))
	} else {
		row("Host", fmt.Sprintf("%s intrinsics supported", render.Count(supported)))
	}
	return nil
}

// ListCmd lists intrinsics matching a query.
type ListCmd struct {
	Query []string `arg:"" optional:"" help:"Search text and facets such as tech:AVX2 cat:Arithmetic ret:__m256."`
	JSON  bool     `name:"json" help:"Emit JSON instead of a table."`
	Host  bool     `help:"Only list intrinsics the running CPU supports."`
	Limit int      `short:"n" help:"Maximum number of results (0 for all)." default:"0"`
}

// listEntry is the JSON form of one list row.
type listEntry struct {
	ID string `json:"id"`
	*intrinsics.Intrinsic
}

// Run executes the list command.
func (c *ListCmd) Run(e *env) error {
	res, err := e.load()
	if err != nil {
		return err
	}
	sel, err := query.Parse(strings.Join(c.Query, " "))
	if err != nil {
		return err
	}
	list := filter.Apply(res, sel)
	if c.Host {
		list = host.Detect().Filter(list)
	}
	total := len(list)
	if c.Limit > 0 && len(list) > c.Limit {
		list = list[:c.Limit]
	}

	if c.JSON {
		entries := make([]listEntry, 0, len(list))
		for _, in := range list {
			entries = append(entries, listEntry{ID: in.ID(), Intrinsic: in})
		}
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	palette := render.PaletteFor(res)
	for _, in := range list {
		id := render.Pad(in.ID(), idColumn)
		fmt.Fprintf(e.out, "%s  %s\n", e.style.Highlight(id, sel.Search), e.techBadge(palette, in.Tech))
	}
	if len(list) < total {
		fmt.Fprintln(e.out, e.style.Dim.Sprintf("... %s more", render.Count(total-len(list))))
	}
	return nil
}

// techBadge colors a technology label with its palette color.
func (e *env) techBadge(p render.Palette, tech string) string {
	if !e.style.Colorized() {
		return tech
	}
	c, err := colorful.Hex(p.Color(tech))
	if err != nil {
		return tech
	}
	r, g, b := c.RGB255()
	badge := color.RGB(int(r), int(g), int(b))
	badge.EnableColor()
	return badge.Sprint(tech)
}

// ShowCmd prints the full description of one intrinsic.
type ShowCmd struct {
	ID string `arg:"" help:"Intrinsic name or display ID."`
}

// Run executes the show command.
func (c *ShowCmd) Run(e *env) error {
	in, err := e.lookup(c.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, e.style.Detail(in))
	return nil
}

func (e *env) lookup(id string) (*intrinsics.Intrinsic, error) {
	res, err := e.load()
	if err != nil {
		return nil, err
	}
	in, ok := res.Lookup(id)
	if !ok {
		return nil, errors.NewNotFound("intrinsic", id)
	}
	return in, nil
}

// TechsCmd lists technologies grouped by family.
type TechsCmd struct{}

// Run executes the techs command.
func (c *TechsCmd) Run(e *env) error {
	res, err := e.load()
	if err != nil {
		return err
	}
	counts := filter.Count(all(res))
	palette := render.PaletteFor(res)
	for _, t := range res.Technologies {
		label := e.techBadge(palette, t.Family)
		if n := techColumn - len(t.Family); n > 0 {
			label += strings.Repeat(" ", n)
		}
		fmt.Fprintf(e.out, "%s %6s  %s\n", label, render.Count(counts.Techs[t.Family]),
			e.style.Dim.Sprint(strings.Join(t.Techs, " ")))
	}
	return nil
}

// CategoriesCmd lists categories with counts.
type CategoriesCmd struct{}

// Run executes the categories command.
func (c *CategoriesCmd) Run(e *env) error {
	res, err := e.load()
	if err != nil {
		return err
	}
	printFacet(e, res.Categories, filter.Count(all(res)).Categories)
	return nil
}

// ReturnTypesCmd lists return types with counts.
type ReturnTypesCmd struct{}

// Run executes the return-types command.
func (c *ReturnTypesCmd) Run(e *env) error {
	res, err := e.load()
	if err != nil {
		return err
	}
	printFacet(e, res.ReturnTypes, filter.Count(all(res)).ReturnTypes)
	return nil
}

func printFacet(e *env, names []string, counts map[string]int) {
	width := 0
	for _, name := range names {
		if len(name) > width {
			width = len(name)
		}
	}
	for _, name := range names {
		fmt.Fprintf(e.out, "%s %6s\n", render.Pad(name, width), render.Count(counts[name]))
	}
}

// ExportCmd groups the export formats.
type ExportCmd struct {
	SQLite ExportSQLiteCmd `cmd:"" name:"sqlite" help:"Write the database to a SQLite file."`
}

// ExportSQLiteCmd writes the snapshot to a SQLite database.
type ExportSQLiteCmd struct {
	Out string `short:"o" required:"" type:"path" help:"Output database file (replaced if it exists)."`
}

// Run executes the export sqlite command.
func (c *ExportSQLiteCmd) Run(e *env) error {
	res, err := e.load()
	if err != nil {
		return err
	}
	if err := sqlite.ExportFile(e.ctx, c.Out, res); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Exported %s intrinsics to %s\n", render.Count(res.Len()), c.Out)
	return nil
}

// XPathCmd evaluates an XPath expression against the raw data file.
type XPathCmd struct {
	Expr string `arg:"" help:"XPath expression, e.g. //intrinsic[@tech='AVX2']/@name."`
	Text bool   `help:"Print text content instead of XML."`
}

// Run executes the xpath command.
func (c *XPathCmd) Run(e *env) error {
	path, err := e.cli.dataPath()
	if err != nil {
		return err
	}
	data, err := intrinsics.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := xml.Parse(data)
	if err != nil {
		return errors.NewOpen(path, err)
	}
	nodes, err := doc.XPath(c.Expr)
	if err != nil {
		return errors.NewValidation("expr", err.Error())
	}
	for _, n := range nodes {
		if c.Text {
			fmt.Fprintln(e.out, n.Text())
		} else {
			fmt.Fprintln(e.out, n.OutputXML())
		}
	}
	logging.Debug("xpath evaluated", "expr", c.Expr, "matches", len(nodes))
	return nil
}

// DumpCmd dumps the in-memory record of one intrinsic.
type DumpCmd struct {
	ID string `arg:"" help:"Intrinsic name or display ID."`
}

// Run executes the dump command.
func (c *DumpCmd) Run(e *env) error {
	in, err := e.lookup(c.ID)
	if err != nil {
		return err
	}
	cfg := spew.ConfigState{
		Indent:                  "  ",
		DisablePointerAddresses: true,
		DisableCapacities:       true,
		SortKeys:                true,
	}
	cfg.Fdump(e.out, *in)
	return nil
}

// ServeCmd serves the database over HTTP.
type ServeCmd struct {
	Port        int           `short:"p" help:"Port to listen on." default:"8080"`
	AllowOrigin []string      `name:"allow-origin" help:"Allowed CORS and websocket origins (repeatable, '*.example.com' allowed)."`
	CacheTTL    time.Duration `name:"cache-ttl" help:"Lifetime of cached facet listings." default:"5m"`
	RateLimit   int           `name:"rate-limit" help:"Requests per minute per client (0 disables)." default:"0"`
	RateBurst   int           `name:"rate-burst" help:"Rate limiter burst size." default:"10"`
	MaxPageSize int           `name:"max-page-size" help:"Upper bound for ?limit=." default:"1000"`
}

// Run executes the serve command. A data file that fails to load leaves the
// server up and empty until POST /reload succeeds.
func (c *ServeCmd) Run(e *env) error {
	path, err := e.cli.dataPath()
	if err != nil {
		return err
	}
	api.Version = Version
	store := e.store()
	srv := api.New(c.serveConfig(path), store, nil)
	if _, err := store.Load(e.ctx, path); err != nil {
		logging.Warn("serving without a database", "path", path, "error", err.Error())
	}
	fmt.Fprintf(e.out, "Serving on http://localhost:%d\n", c.Port)
	return srv.ListenAndServe(e.ctx)
}

// BrowseCmd opens the interactive browser.
type BrowseCmd struct {
	Host bool `help:"Start with only intrinsics the running CPU supports."`
}

// Run executes the browse command.
func (c *BrowseCmd) Run(e *env) error {
	sessPath, err := e.cli.sessionPath()
	if err != nil {
		return errors.NewIO("resolve session path", "", err)
	}
	sess, err := session.Load(sessPath)
	if err != nil {
		logging.Warn("ignoring unreadable session", "path", sessPath, "error", err.Error())
		sess = &session.Session{}
	}

	res, err := e.load()
	if err != nil {
		return err
	}
	if info, ok := e.loaded.Info(); ok {
		sess.DataPath = info.Path
	}

	sess, runErr := tui.Run(res, sess, tui.Options{Host: host.Detect(), HostOnly: c.Host})
	if err := session.Save(sessPath, sess); err != nil {
		logging.Warn("session not saved", "path", sessPath, "error", err.Error())
	}
	return runErr
}

// CacheCmd groups snapshot cache maintenance.
type CacheCmd struct {
	Clear CacheClearCmd `cmd:"" help:"Remove every cached snapshot."`
	List  CacheListCmd  `cmd:"" help:"List cached snapshots."`
}

// CacheClearCmd removes every cached snapshot.
type CacheClearCmd struct{}

// Run executes the cache clear command.
func (c *CacheClearCmd) Run(e *env) error {
	store, err := snapshot.Open(e.cli.CacheDir)
	if err != nil {
		return err
	}
	n, err := store.Clear()
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Removed %s snapshots from %s\n", render.Count(n), store.Dir())
	return nil
}

// CacheListCmd lists cached snapshot keys.
type CacheListCmd struct{}

// Run executes the cache list command.
func (c *CacheListCmd) Run(e *env) error {
	store, err := snapshot.Open(e.cli.CacheDir)
	if err != nil {
		return err
	}
	keys, err := store.Entries()
	if err != nil {
		return err
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintln(e.out, k)
	}
	return nil
}

func all(res *intrinsics.ParseResult) []*intrinsics.Intrinsic {
	return filter.Apply(res, filter.Selection{})
}
