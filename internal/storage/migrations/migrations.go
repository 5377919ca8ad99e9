package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresExecer is satisfied by *pgxpool.Pool and pgx.Tx.
type PostgresExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ClickhouseExecer is satisfied by clickhouse driver.Conn.
type ClickhouseExecer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// RunPostgresMigrations applies all embedded SQL files in lexical order.
// Migrations are expected to be idempotent.
func RunPostgresMigrations(ctx context.Context, db PostgresExecer) error {
	return apply(PostgresFS, "postgres", func(file, data string) error {
		if _, err := db.Exec(ctx, data); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		return nil
	})
}

// RunSQLiteMigrations applies all embedded SQLite files, one statement at a time.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB) error {
	return apply(SQLiteFS, "sqlite", func(file, data string) error {
		for _, stmt := range splitStatements(data) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
		return nil
	})
}

// RunClickhouseMigrations applies all embedded ClickHouse files. The driver
// does not support multi-statement Exec, so files are split on semicolons.
func RunClickhouseMigrations(ctx context.Context, conn ClickhouseExecer) error {
	return apply(ClickhouseFS, "clickhouse", func(file, data string) error {
		if err := validateNoSemicolonInStrings(data); err != nil {
			return fmt.Errorf("validate migration %s: %w", file, err)
		}
		for _, stmt := range splitStatements(data) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
		return nil
	})
}

func apply(fsys fs.FS, dir string, run func(file, data string) error) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(fsys, dir+"/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if err := run(file, string(data)); err != nil {
			return err
		}
	}
	return nil
}

// splitStatements splits SQL content into statements by semicolon.
//
// The splitter does not handle semicolons inside string literals or block
// comments. Migrations use -- comments only and keep literals free of
// semicolons; validateNoSemicolonInStrings enforces the latter.
func splitStatements(input string) []string {
	var filtered []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		filtered = append(filtered, line)
	}
	joined := strings.Join(filtered, "\n")

	var stmts []string
	for _, part := range strings.Split(joined, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings rejects semicolons inside single-quoted strings.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' {
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		} else if ch == ';' && inString {
			return fmt.Errorf("semicolon inside string literal at offset %d", i)
		}
	}
	return nil
}
