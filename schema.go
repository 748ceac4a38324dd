package ucenter

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"text/template"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

const migrationSplit = "--bun:split"

// GetMigrationsFS returns the migration files for this package. Table names
// are template placeholders, see RenderMigrations.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// RenderMigrations returns the schema statements for the given dialect
// directory ("sqlite" or "postgres") with table names taken from tables.
func RenderMigrations(dir string, tables TableConfig) ([]string, error) {
	root := path.Join("data/sql/migrations", dir)
	entries, err := fs.ReadDir(migrationsFS, root)
	if err != nil {
		return nil, fmt.Errorf("ucenter: no migrations for %q: %w", dir, err)
	}

	var statements []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}

		raw, err := fs.ReadFile(migrationsFS, path.Join(root, entry.Name()))
		if err != nil {
			return nil, err
		}

		tpl, err := template.New(entry.Name()).Option("missingkey=error").Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("ucenter: parse migration %s: %w", entry.Name(), err)
		}

		var buf bytes.Buffer
		if err := tpl.Execute(&buf, tables); err != nil {
			return nil, fmt.Errorf("ucenter: render migration %s: %w", entry.Name(), err)
		}

		for _, stmt := range strings.Split(buf.String(), migrationSplit) {
			if stmt = strings.TrimSpace(stmt); stmt != "" {
				statements = append(statements, stmt)
			}
		}
	}

	return statements, nil
}

// CreateSchema creates the tables and indexes if they do not exist.
func CreateSchema(ctx context.Context, db bun.IDB, tables TableConfig) error {
	dir, err := migrationDir(db.Dialect().Name())
	if err != nil {
		return err
	}

	statements, err := RenderMigrations(dir, tables)
	if err != nil {
		return err
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return storeFault(err, "failed to create schema")
		}
	}
	return nil
}

func migrationDir(name dialect.Name) (string, error) {
	switch name {
	case dialect.SQLite:
		return "sqlite", nil
	case dialect.PG:
		return "postgres", nil
	}
	return "", fmt.Errorf("ucenter: unsupported dialect %s", name)
}
