package db

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion is bumped when schema.sql carries a breaking change worth
// tracking explicitly via PRAGMA user_version, independent of the
// structural diff AutoMigrate already performs on every boot.
const SchemaVersion = 1

// MaxBackups bounds how many timestamped pre-migration backups are kept
// alongside the database file.
const MaxBackups = 3

// AutoMigrate compares the live database's tables against a pristine
// in-memory database built from schemaSQL and recreates any table whose
// definition has drifted, preserving data in columns common to both
// versions. Schema.sql is the single source of truth — there are no
// numbered migration files to apply in order. dbPath is used only to
// decide whether and where to write a pre-migration backup; pass "" to
// skip backups (e.g. for an in-memory test database).
func AutoMigrate(conn *sql.DB, schemaSQL string, dbPath string) error {
	pristine, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return fmt.Errorf("open pristine in-memory db: %w", err)
	}
	defer pristine.Close()

	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := pristine.Exec(stmt); err != nil {
			return fmt.Errorf("build pristine schema: %w", err)
		}
	}

	pristineTables, err := tableDefinitions(pristine)
	if err != nil {
		return fmt.Errorf("read pristine tables: %w", err)
	}
	actualTables, err := tableDefinitions(conn)
	if err != nil {
		return fmt.Errorf("read actual tables: %w", err)
	}

	var newTables, changedTables []string
	for name, sql := range pristineTables {
		actual, exists := actualTables[name]
		if !exists {
			newTables = append(newTables, name)
			continue
		}
		if normalizeSQL(sql) != normalizeSQL(actual) {
			changedTables = append(changedTables, name)
		}
	}
	sort.Strings(newTables)
	sort.Strings(changedTables)

	if (len(newTables) > 0 || len(changedTables) > 0) && dbPath != "" {
		if _, err := os.Stat(dbPath); err == nil {
			if err := createBackup(dbPath); err != nil {
				log.Printf("db: could not create pre-migration backup: %v", err)
			}
		}
	}

	changed := false
	var changeLog []string

	for _, name := range newTables {
		if _, err := conn.Exec(pristineTables[name]); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
		changeLog = append(changeLog, fmt.Sprintf("created table %q", name))
		changed = true
	}

	for _, name := range changedTables {
		if err := recreateTable(conn, pristine, name, pristineTables[name]); err != nil {
			return fmt.Errorf("recreate table %s: %w", name, err)
		}
		changeLog = append(changeLog, fmt.Sprintf("updated table %q", name))
		changed = true
	}

	if err := recreateIndexesAndTriggers(conn, schemaSQL); err != nil {
		return fmt.Errorf("recreate indexes/triggers: %w", err)
	}

	currentVersion, err := userVersion(conn)
	if err != nil {
		return err
	}
	if changed || currentVersion != SchemaVersion {
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		if changed {
			log.Printf("db: migrated to schema v%d: %s", SchemaVersion, strings.Join(changeLog, ", "))
		}
	}
	return nil
}

func userVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return version, nil
}

func tableDefinitions(conn *sql.DB) (map[string]string, error) {
	rows, err := conn.Query(`SELECT name, sql FROM sqlite_schema WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name string
		var createSQL sql.NullString
		if err := rows.Scan(&name, &createSQL); err != nil {
			return nil, err
		}
		if createSQL.Valid && createSQL.String != "" {
			out[name] = createSQL.String
		}
	}
	return out, rows.Err()
}

func normalizeSQL(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// recreateTable applies SQLite's documented 12-step safe-recreate
// procedure: build a temp table under the new definition, copy data for
// columns common to both schemas, drop the old table, then rename.
func recreateTable(conn *sql.DB, pristine *sql.DB, name, pristineSQL string) error {
	pristineCols, err := tableColumns(pristine, name)
	if err != nil {
		return err
	}
	actualCols, err := tableColumns(conn, name)
	if err != nil {
		return err
	}
	common := intersect(pristineCols, actualCols)

	if len(common) == 0 {
		if _, err := conn.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %q", name)); err != nil {
			return err
		}
		_, err := conn.Exec(pristineSQL)
		return err
	}

	quotedCols := make([]string, len(common))
	for i, c := range common {
		quotedCols[i] = fmt.Sprintf("%q", c)
	}
	colsCSV := strings.Join(quotedCols, ", ")
	tempName := "_migrate_" + name

	if _, err := conn.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		return err
	}
	defer conn.Exec("PRAGMA foreign_keys=ON")

	tempSQL := pristineSQL
	for _, pattern := range []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q", name),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s", name),
		fmt.Sprintf("CREATE TABLE %q", name),
		fmt.Sprintf("CREATE TABLE %s", name),
	} {
		if strings.Contains(tempSQL, pattern) {
			tempSQL = strings.Replace(tempSQL, pattern, fmt.Sprintf("CREATE TABLE %q", tempName), 1)
			break
		}
	}

	if _, err := conn.Exec(tempSQL); err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %q (%s) SELECT %s FROM %q", tempName, colsCSV, colsCSV, name)
	if _, err := conn.Exec(insertSQL); err != nil {
		return fmt.Errorf("copy data into temp table: %w", err)
	}
	if _, err := conn.Exec(fmt.Sprintf("DROP TABLE %q", name)); err != nil {
		return fmt.Errorf("drop old table: %w", err)
	}
	if _, err := conn.Exec(fmt.Sprintf("ALTER TABLE %q RENAME TO %q", tempName, name)); err != nil {
		return fmt.Errorf("rename temp table: %w", err)
	}
	return nil
}

func tableColumns(conn *sql.DB, table string) ([]string, error) {
	rows, err := conn.Query(fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	var out []string
	for _, v := range a {
		if set[v] {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// recreateIndexesAndTriggers replays every CREATE INDEX/CREATE TRIGGER
// statement in schemaSQL; schema.sql writes these with IF NOT EXISTS so
// replaying them against an already-current database is a no-op.
func recreateIndexesAndTriggers(conn *sql.DB, schemaSQL string) error {
	for _, stmt := range splitStatements(schemaSQL) {
		upper := strings.ToUpper(stmt)
		if strings.HasPrefix(upper, "CREATE INDEX") || strings.HasPrefix(upper, "CREATE TRIGGER") {
			if _, err := conn.Exec(stmt); err != nil {
				return fmt.Errorf("replay %q: %w", stmt, err)
			}
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		trimmed := strings.TrimSpace(stmt)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func createBackup(dbPath string) error {
	timestamp := time.Now().UTC().Format("20060102_150405")
	backupPath := dbPath + ".backup_" + timestamp

	src, err := os.Open(dbPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(backupPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := dst.ReadFrom(src); err != nil {
		return err
	}

	return pruneOldBackups(dbPath)
}

func pruneOldBackups(dbPath string) error {
	dir := filepath.Dir(dbPath)
	base := filepath.Base(dbPath)
	matches, err := filepath.Glob(filepath.Join(dir, base+".backup_*"))
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	for _, old := range matches[min(len(matches), MaxBackups):] {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
