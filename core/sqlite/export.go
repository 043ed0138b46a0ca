package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/errors"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/intrinsics"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/logging"
)

// schema is the relational layout of an exported snapshot. Row order in
// every child table follows the position column.
var schema = []string{
	`CREATE TABLE meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE intrinsics (
		id          INTEGER PRIMARY KEY,
		name        TEXT NOT NULL,
		display_id  TEXT NOT NULL,
		tech        TEXT NOT NULL,
		category    TEXT NOT NULL,
		return_type TEXT NOT NULL,
		description TEXT NOT NULL,
		operation   TEXT NOT NULL,
		header      TEXT NOT NULL
	)`,
	`CREATE TABLE intrinsic_cpuids (
		intrinsic_id INTEGER NOT NULL REFERENCES intrinsics(id),
		cpuid        TEXT NOT NULL,
		PRIMARY KEY (intrinsic_id, cpuid)
	)`,
	`CREATE TABLE parameters (
		intrinsic_id INTEGER NOT NULL REFERENCES intrinsics(id),
		position     INTEGER NOT NULL,
		name         TEXT NOT NULL,
		type         TEXT NOT NULL
	)`,
	`CREATE TABLE instructions (
		intrinsic_id INTEGER NOT NULL REFERENCES intrinsics(id),
		position     INTEGER NOT NULL,
		name         TEXT NOT NULL,
		form         TEXT NOT NULL,
		xed          TEXT NOT NULL
	)`,
	`CREATE TABLE technologies (
		position INTEGER NOT NULL,
		family   TEXT NOT NULL,
		cpuid    TEXT
	)`,
	`CREATE INDEX idx_intrinsics_name ON intrinsics(name)`,
	`CREATE INDEX idx_intrinsic_cpuids_cpuid ON intrinsic_cpuids(cpuid)`,
}

// Export writes res into db inside a single transaction. db must be empty.
func Export(ctx context.Context, db *sql.DB, res *intrinsics.ParseResult) error {
	if res == nil {
		return errors.NewValidation("result", "nothing to export")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	meta := map[string]string{
		"version":    res.Version,
		"date":       res.Date,
		"intrinsics": strconv.Itoa(len(res.Intrinsics)),
		"driver":     driverPackage,
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}

	if err := insertIntrinsics(ctx, tx, res.Intrinsics); err != nil {
		return err
	}
	if err := insertTechnologies(ctx, tx, res.Technologies); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}
	return nil
}

func insertIntrinsics(ctx context.Context, tx *sql.Tx, list []intrinsics.Intrinsic) error {
	insIntrinsic, err := tx.PrepareContext(ctx, `INSERT INTO intrinsics
		(id, name, display_id, tech, category, return_type, description, operation, header)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare intrinsics: %w", err)
	}
	defer insIntrinsic.Close()

	insCPUID, err := tx.PrepareContext(ctx, `INSERT INTO intrinsic_cpuids (intrinsic_id, cpuid) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare cpuids: %w", err)
	}
	defer insCPUID.Close()

	insParam, err := tx.PrepareContext(ctx, `INSERT INTO parameters (intrinsic_id, position, name, type) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare parameters: %w", err)
	}
	defer insParam.Close()

	insInstr, err := tx.PrepareContext(ctx, `INSERT INTO instructions (intrinsic_id, position, name, form, xed) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare instructions: %w", err)
	}
	defer insInstr.Close()

	for n := range list {
		in := &list[n]
		id := n + 1
		if _, err := insIntrinsic.ExecContext(ctx, id, in.Name, in.ID(), in.Tech, in.Category,
			in.ReturnType, in.Description, in.Operation, in.Header); err != nil {
			return fmt.Errorf("insert %s: %w", in.Name, err)
		}
		for _, c := range in.CPUIDs {
			if _, err := insCPUID.ExecContext(ctx, id, c); err != nil {
				return fmt.Errorf("insert cpuid %s for %s: %w", c, in.Name, err)
			}
		}
		for pos, p := range in.Params {
			if _, err := insParam.ExecContext(ctx, id, pos, p.Name, p.Type); err != nil {
				return fmt.Errorf("insert parameter for %s: %w", in.Name, err)
			}
		}
		for pos, ins := range in.Instructions {
			if _, err := insInstr.ExecContext(ctx, id, pos, ins.Name, ins.Form, ins.XED); err != nil {
				return fmt.Errorf("insert instruction for %s: %w", in.Name, err)
			}
		}
	}
	return nil
}

func insertTechnologies(ctx context.Context, tx *sql.Tx, techs []intrinsics.Technology) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO technologies (position, family, cpuid) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare technologies: %w", err)
	}
	defer stmt.Close()

	pos := 0
	for _, t := range techs {
		if len(t.Techs) == 0 {
			if _, err := stmt.ExecContext(ctx, pos, t.Family, nil); err != nil {
				return fmt.Errorf("insert technology %s: %w", t.Family, err)
			}
			pos++
			continue
		}
		for _, c := range t.Techs {
			if _, err := stmt.ExecContext(ctx, pos, t.Family, c); err != nil {
				return fmt.Errorf("insert technology %s/%s: %w", t.Family, c, err)
			}
			pos++
		}
	}
	return nil
}

// ExportFile writes res to a fresh database at path, replacing any file
// already there.
func ExportFile(ctx context.Context, path string, res *intrinsics.ParseResult) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewIO("remove", path, err)
	}

	db, err := Open(path)
	if err != nil {
		return errors.NewIO("open", path, err)
	}
	defer db.Close()

	if err := Export(ctx, db, res); err != nil {
		return err
	}
	logging.Info("sqlite_export",
		"path", path,
		"driver", driverName,
		"intrinsics", res.Len())
	return nil
}

// CountIntrinsics returns the number of exported intrinsics.
func CountIntrinsics(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM intrinsics`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count intrinsics: %w", err)
	}
	return n, nil
}

// NamesByCPUID returns the names of exported intrinsics requiring cpuid, in
// snapshot order.
func NamesByCPUID(ctx context.Context, db *sql.DB, cpuid string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT i.name FROM intrinsics i
		JOIN intrinsic_cpuids c ON c.intrinsic_id = i.id
		WHERE c.cpuid = ? ORDER BY i.id`, cpuid)
	if err != nil {
		return nil, fmt.Errorf("query by cpuid: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Meta reads the meta table.
func Meta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("query meta: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
