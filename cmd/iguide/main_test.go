package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/errors"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/sqlite"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/session"
)

const samplePath = "../../core/intrinsics/testdata/sample.xml"

// fixture isolates one CLI invocation from the user's cache and session.
type fixture struct {
	data     string
	cacheDir string
	session  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	for _, name := range []string{"IGUIDE_DATA", "IGUIDE_CACHE_DIR"} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	dir := t.TempDir()
	abs, err := filepath.Abs(samplePath)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		data:     abs,
		cacheDir: filepath.Join(dir, "cache"),
		session:  filepath.Join(dir, "session.toml"),
	}
}

// exec runs the CLI with the fixture's global flags prepended.
func (f *fixture) exec(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	full := []string{"--no-color", "--cache-dir", f.cacheDir, "--session", f.session}
	if f.data != "" {
		full = append(full, "--data", f.data)
	}
	full = append(full, args...)

	var out, errOut bytes.Buffer
	code = run(context.Background(), full, &out, &errOut)
	return out.String(), errOut.String(), code
}

func (f *fixture) mustExec(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, code := f.exec(t, args...)
	if code != exitOK {
		t.Fatalf("iguide %s: exit %d\nstderr: %s", strings.Join(args, " "), code, errOut)
	}
	return out
}

func lines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestVersion(t *testing.T) {
	out := newFixture(t).mustExec(t, "version")
	if !strings.Contains(out, "iguide version "+Version) {
		t.Errorf("version output = %q", out)
	}
}

func TestHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"--help"}, &out, &errOut)
	if code != exitOK {
		t.Errorf("--help exit = %d", code)
	}
	if !strings.Contains(out.String(), "iguide") {
		t.Errorf("help output = %q", out.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	_, _, code := newFixture(t).exec(t, "frobnicate")
	if code == exitOK {
		t.Error("unknown command should fail")
	}
}

func TestInfo(t *testing.T) {
	out := newFixture(t).mustExec(t, "info")
	for _, want := range []string{"3.6.9 (07/12/2024)", "Intrinsics:", "11", "Categories:", "Loaded from:"} {
		if !strings.Contains(out, want) {
			t.Errorf("info output missing %q:\n%s", want, out)
		}
	}
}

func TestList(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		first string
		want  int
	}{
		{"everything", []string{"list"}, "_mm_empty", 11},
		{"search", []string{"list", "add"}, "_mm_add_ps", 5},
		{"facet", []string{"list", "cat:Mask"}, "_mm512_kmovlhb", 1},
		{"search and facet", []string{"list", "add", "ret:__m128"}, "_mm_add_ps", 1},
		{"no match", []string{"list", "nothing_matches_this"}, "", 0},
	}
	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lines(f.mustExec(t, tt.args...))
			if len(got) != tt.want {
				t.Fatalf("got %d rows, want %d:\n%s", len(got), tt.want, strings.Join(got, "\n"))
			}
			if tt.want > 0 && !strings.HasPrefix(got[0], tt.first) {
				t.Errorf("first row = %q, want prefix %q", got[0], tt.first)
			}
		})
	}
}

func TestListLimit(t *testing.T) {
	got := lines(newFixture(t).mustExec(t, "list", "-n", "2", "add"))
	if len(got) != 3 {
		t.Fatalf("rows = %v", got)
	}
	if got[2] != "... 3 more" {
		t.Errorf("trailer = %q", got[2])
	}
}

func TestListJSON(t *testing.T) {
	out := newFixture(t).mustExec(t, "list", "--json", "--limit", "2", "add")
	var rows []map[string]any
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("not JSON: %v\n%s", err, out)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["id"] != "_mm_add_ps (addps)" || rows[0]["name"] != "_mm_add_ps" {
		t.Errorf("first row = %v", rows[0])
	}
}

func TestListBadQuery(t *testing.T) {
	_, errOut, code := newFixture(t).exec(t, "list", "bogus:x")
	if code != exitError {
		t.Errorf("exit = %d, want %d", code, exitError)
	}
	if errOut == "" {
		t.Error("expected a diagnostic on stderr")
	}
}

func TestShow(t *testing.T) {
	f := newFixture(t)
	out := f.mustExec(t, "show", "_mm_add_ps")
	if !strings.Contains(out, "_mm_add_ps") || !strings.Contains(out, "__m128") {
		t.Errorf("show output = %q", out)
	}

	_, errOut, code := f.exec(t, "show", "_mm_nope")
	if code != exitError || !strings.Contains(errOut, "not found") {
		t.Errorf("missing intrinsic: exit %d, stderr %q", code, errOut)
	}
}

func TestFacetListings(t *testing.T) {
	f := newFixture(t)

	techs := lines(f.mustExec(t, "techs"))
	if len(techs) != 10 {
		t.Errorf("techs rows = %d, want 10", len(techs))
	}
	if len(techs) > 0 && !strings.HasPrefix(techs[0], "MMX Family") {
		t.Errorf("first tech row = %q", techs[0])
	}

	if n := len(lines(f.mustExec(t, "categories"))); n != 7 {
		t.Errorf("categories rows = %d, want 7", n)
	}
	if n := len(lines(f.mustExec(t, "return-types"))); n != 8 {
		t.Errorf("return-types rows = %d, want 8", n)
	}
}

func TestExportSQLite(t *testing.T) {
	f := newFixture(t)
	dbPath := filepath.Join(t.TempDir(), "guide.db")
	out := f.mustExec(t, "export", "sqlite", "--out", dbPath)
	if !strings.Contains(out, "Exported 11 intrinsics") {
		t.Errorf("export output = %q", out)
	}

	db, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	n, err := sqlite.CountIntrinsics(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	if n != 11 {
		t.Errorf("exported rows = %d, want 11", n)
	}
}

func TestXPath(t *testing.T) {
	f := newFixture(t)
	out := f.mustExec(t, "xpath", "//intrinsic[@name='_popcnt32']")
	if !strings.Contains(out, "_popcnt32") || !strings.Contains(out, "POPCNT") {
		t.Errorf("xpath output = %q", out)
	}

	_, _, code := f.exec(t, "xpath", "//[")
	if code != exitError {
		t.Errorf("invalid expression exit = %d", code)
	}
}

func TestDump(t *testing.T) {
	out := newFixture(t).mustExec(t, "dump", "_popcnt32")
	for _, want := range []string{"intrinsics.Intrinsic", "Name: (string)", `"_popcnt32"`} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
}

func TestExitCodes(t *testing.T) {
	dir := t.TempDir()
	notGuide := filepath.Join(dir, "other.xml")
	if err := os.WriteFile(notGuide, []byte(`<catalog><item/></catalog>`), 0o644); err != nil {
		t.Fatal(err)
	}
	garbage := filepath.Join(dir, "garbage.xml")
	if err := os.WriteFile(garbage, []byte("not xml at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data string
		want int
	}{
		{"missing file", filepath.Join(dir, "missing.xml"), exitOpen},
		{"not xml", garbage, exitOpen},
		{"wrong document", notGuide, exitFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.data = tt.data
			_, errOut, code := f.exec(t, "info")
			if code != tt.want {
				t.Errorf("exit = %d, want %d (stderr %q)", code, tt.want, errOut)
			}
		})
	}
}

func TestExitCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{errors.NewOpen("x.xml", fmt.Errorf("boom")), exitOpen},
		{errors.NewFormat("x.xml", "version"), exitFormat},
		{fmt.Errorf("wrapped: %w", errors.NewFormat("x.xml", "date")), exitFormat},
		{errors.NewNotFound("intrinsic", "x"), exitError},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestNoDataFile(t *testing.T) {
	f := newFixture(t)
	f.data = ""
	_, errOut, code := f.exec(t, "info")
	if code != exitError || !strings.Contains(errOut, "no data file") {
		t.Errorf("exit %d, stderr %q", code, errOut)
	}
}

func TestSessionSuppliesDataPath(t *testing.T) {
	f := newFixture(t)
	if err := session.Save(f.session, &session.Session{DataPath: f.data}); err != nil {
		t.Fatal(err)
	}
	f.data = ""
	out := f.mustExec(t, "info")
	if !strings.Contains(out, "3.6.9") {
		t.Errorf("info output = %q", out)
	}
}

func TestLoadRemembersDataPath(t *testing.T) {
	f := newFixture(t)
	f.mustExec(t, "list", "add")

	sess, err := session.Load(f.session)
	if err != nil {
		t.Fatal(err)
	}
	if sess.DataPath != f.data {
		t.Fatalf("session DataPath = %q, want %q", sess.DataPath, f.data)
	}

	f.data = ""
	if n := len(lines(f.mustExec(t, "list", "add"))); n != 5 {
		t.Errorf("rows without --data = %d, want 5", n)
	}
}

func TestCacheCommands(t *testing.T) {
	f := newFixture(t)
	f.mustExec(t, "info")

	if keys := lines(f.mustExec(t, "cache", "list")); len(keys) != 1 {
		t.Fatalf("cache list = %v, want one snapshot", keys)
	}
	out := f.mustExec(t, "cache", "clear")
	if !strings.HasPrefix(out, "Removed 1 snapshots") {
		t.Errorf("cache clear output = %q", out)
	}
	if keys := lines(f.mustExec(t, "cache", "list")); len(keys) != 0 {
		t.Errorf("cache list after clear = %v", keys)
	}
}

func TestNoCacheSkipsDisk(t *testing.T) {
	f := newFixture(t)
	f.mustExec(t, "--no-cache", "info")
	if keys := lines(f.mustExec(t, "cache", "list")); len(keys) != 0 {
		t.Errorf("--no-cache wrote snapshots: %v", keys)
	}
}

func TestServeConfig(t *testing.T) {
	c := &ServeCmd{Port: 9000, AllowOrigin: []string{"*.example.com"}, RateLimit: 60, RateBurst: 5}
	cfg := c.serveConfig("/data.xml")
	if cfg.Port != 9000 || cfg.DataPath != "/data.xml" || cfg.RateLimitRequests != 60 || cfg.RateLimitBurst != 5 {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.MaxPageSize != 1000 {
		t.Errorf("MaxPageSize = %d, want default", cfg.MaxPageSize)
	}
}
