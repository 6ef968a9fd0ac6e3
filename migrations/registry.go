package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"strings"

	engage "github.com/goliatone/go-engage"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Schema objects the SQL journal store depends on.
const (
	NotificationsTable = "engage_notifications"
	OneOutcomeIndex    = "engage_notifications_one_outcome_idx"
)

var (
	createTablePattern = regexp.MustCompile(`(?is)create\s+table\s+(if\s+not\s+exists\s+)?` + NotificationsTable + `\s*\(`)
	dropTablePattern   = regexp.MustCompile(`(?is)drop\s+table\s+(if\s+exists\s+)?` + NotificationsTable + `\b`)
	// The partial unique index is what rejects a second terminal
	// notification for the same attempt or session.
	oneOutcomePattern = regexp.MustCompile(`(?is)create\s+unique\s+index\s+(if\s+not\s+exists\s+)?` + OneOutcomeIndex +
		`\s+on\s+` + NotificationsTable + `\s*\(\s*scope_id\s*\)\s*where\s+terminal\b`)
)

// Tree is the migration directory of one dialect.
type Tree struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type RegisterFunc func(ctx context.Context, dialect string, fsys fs.FS) error

// Trees splits a migration source into its postgres root and sqlite
// subdirectory and validates both. Without a source the embedded journal
// schema is used.
func Trees(sources ...fs.FS) ([]Tree, error) {
	root := engage.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}
	base, err := fs.Sub(root, "data/sql/migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve data/sql/migrations: %w", err)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}

	trees := []Tree{
		{Dialect: DialectPostgres, Path: "data/sql/migrations", FS: base},
		{Dialect: DialectSQLite, Path: "data/sql/migrations/sqlite", FS: sqliteFS},
	}
	for _, tree := range trees {
		if err := Validate(tree); err != nil {
			return nil, err
		}
	}
	return trees, nil
}

// Validate checks that every up migration has a down pair, that the ups
// create the notifications table with its one-outcome index and that the
// downs drop the table again.
func Validate(tree Tree) error {
	if tree.FS == nil {
		return fmt.Errorf("migrations: %s tree is nil", tree.Dialect)
	}
	ups, err := fs.Glob(tree.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: glob %s %s: %w", tree.Dialect, tree.Path, err)
	}
	if len(ups) == 0 {
		return fmt.Errorf("migrations: %s tree %q has no *.up.sql files", tree.Dialect, tree.Path)
	}
	slices.Sort(ups)

	var upSQL, downSQL strings.Builder
	for _, up := range ups {
		content, err := fs.ReadFile(tree.FS, up)
		if err != nil {
			return fmt.Errorf("migrations: read %s: %w", up, err)
		}
		upSQL.Write(content)
		upSQL.WriteByte('\n')

		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		content, err = fs.ReadFile(tree.FS, down)
		if err != nil {
			return fmt.Errorf("migrations: %s %s has no down migration %s: %w", tree.Dialect, up, down, err)
		}
		downSQL.Write(content)
		downSQL.WriteByte('\n')
	}

	switch {
	case !createTablePattern.MatchString(upSQL.String()):
		return fmt.Errorf("migrations: %s tree does not create %s", tree.Dialect, NotificationsTable)
	case !oneOutcomePattern.MatchString(upSQL.String()):
		return fmt.Errorf("migrations: %s tree is missing the partial unique index %s", tree.Dialect, OneOutcomeIndex)
	case !dropTablePattern.MatchString(downSQL.String()):
		return fmt.Errorf("migrations: %s down migrations do not drop %s", tree.Dialect, NotificationsTable)
	}
	return nil
}

// Register validates the embedded trees and hands the requested dialects to
// registerFn, postgres first. With no dialects every tree is registered.
func Register(ctx context.Context, registerFn RegisterFunc, dialects ...string) ([]Tree, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	wanted := make([]string, 0, len(dialects))
	for _, dialect := range dialects {
		dialect = strings.ToLower(strings.TrimSpace(dialect))
		if dialect == "" {
			continue
		}
		if dialect != DialectPostgres && dialect != DialectSQLite {
			return nil, fmt.Errorf("migrations: unsupported dialect %q", dialect)
		}
		wanted = append(wanted, dialect)
	}

	trees, err := Trees()
	if err != nil {
		return nil, err
	}
	registered := make([]Tree, 0, len(trees))
	for _, tree := range trees {
		if len(wanted) > 0 && !slices.Contains(wanted, tree.Dialect) {
			continue
		}
		if err := registerFn(ctx, tree.Dialect, tree.FS); err != nil {
			return registered, fmt.Errorf("migrations: register %s (%s): %w", tree.Dialect, tree.Path, err)
		}
		registered = append(registered, tree)
	}
	return registered, nil
}
