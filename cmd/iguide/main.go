// Command iguide browses, searches and serves the Intel Intrinsics Guide
// database.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/cache"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/errors"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/intrinsics"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/snapshot"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/api"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/catalog"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/logging"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/render"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/session"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// Exit codes. Usage errors exit with exitError.
const (
	exitOK     = 0
	exitError  = 1
	exitOpen   = 2
	exitFormat = 3
)

// CLI defines the command-line interface.
type CLI struct {
	Data      string `help:"Intrinsics Guide data file (XML, optionally xz-compressed)." env:"IGUIDE_DATA" type:"path" placeholder:"FILE"`
	CacheDir  string `name:"cache-dir" help:"Snapshot cache directory." env:"IGUIDE_CACHE_DIR" type:"path" placeholder:"DIR"`
	NoCache   bool   `name:"no-cache" help:"Always parse the XML, bypassing the snapshot cache."`
	Session   string `help:"Session file used by browse and as the data file fallback." type:"path" placeholder:"FILE"`
	NoColor   bool   `name:"no-color" help:"Disable colored output."`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)." default:"warn" enum:"debug,info,warn,error"`
	LogFormat string `name:"log-format" help:"Log format (text, json)." default:"text" enum:"text,json"`

	Info        InfoCmd        `cmd:"" help:"Show the loaded database version and counts."`
	List        ListCmd        `cmd:"" help:"List intrinsics matching a query."`
	Show        ShowCmd        `cmd:"" help:"Show the full description of one intrinsic."`
	Techs       TechsCmd       `cmd:"" help:"List technologies grouped by family."`
	Categories  CategoriesCmd  `cmd:"" help:"List categories with counts."`
	ReturnTypes ReturnTypesCmd `cmd:"" name:"return-types" help:"List return types with counts."`
	Export      ExportCmd      `cmd:"" help:"Export the database to other formats."`
	XPath       XPathCmd       `cmd:"" name:"xpath" help:"Evaluate an XPath expression against the raw data file."`
	Dump        DumpCmd        `cmd:"" help:"Dump the in-memory record of one intrinsic."`
	Serve       ServeCmd       `cmd:"" help:"Serve the database over HTTP and websocket."`
	Browse      BrowseCmd      `cmd:"" help:"Browse the database interactively."`
	Cache       CacheCmd       `cmd:"" help:"Manage the snapshot cache."`
	Version     VersionCmd     `cmd:"" help:"Show version information."`
}

// env is what every command needs besides its own flags.
type env struct {
	ctx    context.Context
	out    io.Writer
	style  *render.Style
	cli    *CLI
	loaded *catalog.Store
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses args, executes the selected command and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cli CLI
	exited := -1
	parser, err := kong.New(&cli,
		kong.Name("iguide"),
		kong.Description("Intel Intrinsics Guide browser"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { exited = code }),
	)
	if err != nil {
		fmt.Fprintf(stderr, "iguide: %v\n", err)
		return exitError
	}

	kctx, err := parser.Parse(args)
	if exited >= 0 {
		return exited
	}
	if err != nil {
		fmt.Fprintf(stderr, "iguide: %v\n", err)
		return exitError
	}

	if err := cli.setupLogging(stderr); err != nil {
		fmt.Fprintf(stderr, "iguide: %v\n", err)
		return exitError
	}

	e := &env{
		ctx:   ctx,
		out:   stdout,
		style: render.NewStyle(!cli.NoColor && !color.NoColor),
		cli:   &cli,
	}
	if err := kctx.Run(e); err != nil {
		fmt.Fprintf(stderr, "iguide: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errors.ErrOpen):
		return exitOpen
	case errors.Is(err, errors.ErrFormat):
		return exitFormat
	default:
		return exitError
	}
}

func (c *CLI) setupLogging(w io.Writer) error {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return errors.NewValidation("log-level", err.Error())
	}
	format, err := logging.ParseFormat(c.LogFormat)
	if err != nil {
		return errors.NewValidation("log-format", err.Error())
	}
	logging.InitLoggerTo(w, level, format)
	return nil
}

// dataPath resolves the data file: the flag (or IGUIDE_DATA) first, then the
// path remembered in the session file.
func (c *CLI) dataPath() (string, error) {
	if c.Data != "" {
		return c.Data, nil
	}
	path, err := c.sessionPath()
	if err == nil {
		if sess, err := session.Load(path); err == nil && sess.DataPath != "" {
			return sess.DataPath, nil
		}
	}
	return "", errors.NewValidation("data", "no data file: pass --data or set IGUIDE_DATA")
}

func (c *CLI) sessionPath() (string, error) {
	if c.Session != "" {
		return c.Session, nil
	}
	return session.DefaultPath()
}

// store builds a catalog store backed by the snapshot caches. A cache
// directory that cannot be created only disables the disk cache.
func (e *env) store() *catalog.Store {
	opts := catalog.Options{Memory: cache.NewDefaultSnapshotCache()}
	if !e.cli.NoCache {
		disk, err := snapshot.Open(e.cli.CacheDir)
		if err != nil {
			logging.Warn("snapshot cache disabled", "error", err.Error())
		} else {
			opts.Disk = disk
		}
	}
	return catalog.New(opts)
}

// load loads the data file and returns its snapshot.
func (e *env) load() (*intrinsics.ParseResult, error) {
	if e.loaded != nil {
		if res := e.loaded.Current(); res != nil {
			return res, nil
		}
	}
	path, err := e.cli.dataPath()
	if err != nil {
		return nil, err
	}
	store := e.store()
	info, err := store.Load(e.ctx, path)
	if err != nil {
		return nil, err
	}
	e.loaded = store
	e.rememberDataPath(info.Path)
	return store.Current(), nil
}

// rememberDataPath records the last successfully loaded file in the session
// so later runs can omit --data. Failures only warn.
func (e *env) rememberDataPath(path string) {
	sessPath, err := e.cli.sessionPath()
	if err != nil {
		logging.Warn("session path unavailable", "error", err.Error())
		return
	}
	sess, err := session.Load(sessPath)
	if err != nil {
		logging.Warn("ignoring unreadable session", "path", sessPath, "error", err.Error())
		return
	}
	if sess.DataPath == path {
		return
	}
	sess.DataPath = path
	if err := session.Save(sessPath, sess); err != nil {
		logging.Warn("session not saved", "path", sessPath, "error", err.Error())
	}
}

// VersionCmd shows version information.
type VersionCmd struct{}

// Run executes the version command.
func (c *VersionCmd) Run(e *env) error {
	fmt.Fprintf(e.out, "iguide version %s\n", Version)
	return nil
}

// serveConfig maps serve flags onto the API configuration.
func (c *ServeCmd) serveConfig(dataPath string) api.Config {
	cfg := api.DefaultConfig()
	cfg.Port = c.Port
	cfg.DataPath = dataPath
	cfg.AllowedOrigins = c.AllowOrigin
	cfg.CacheTTL = c.CacheTTL
	cfg.RateLimitRequests = c.RateLimit
	cfg.RateLimitBurst = c.RateBurst
	if c.MaxPageSize > 0 {
		cfg.MaxPageSize = c.MaxPageSize
	}
	return cfg
}
