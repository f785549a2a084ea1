// Package history persists completed audit passes in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tyemirov/dagwatch/internal/audit"
)

//go:embed schema.sql
var schemaSQL string

const (
	sqliteDriverNameConstant             = "sqlite3"
	timestampLayoutConstant              = time.RFC3339Nano
	databaseDirectoryPermissionConstant  = 0o755
	databasePathMissingMessageConstant   = "history database path must be provided"
	databaseOpenErrorTemplateConstant    = "unable to open history database %s: %w"
	databasePingErrorTemplateConstant    = "unable to connect to history database %s: %w"
	directoryCreateErrorTemplateConstant = "unable to create history database directory %s: %w"
	pragmaErrorTemplateConstant          = "unable to execute %q: %w"
	schemaErrorTemplateConstant          = "unable to apply history schema: %w"
	recordErrorTemplateConstant          = "unable to record audit pass %s: %w"
	queryErrorTemplateConstant           = "unable to query audit history: %w"
	timestampParseErrorTemplateConstant  = "unable to parse stored timestamp %q: %w"
	passNotFoundTemplateConstant         = "%w: %s"
	databaseMissingTemplateConstant      = "%w: %s"
	databaseStatErrorTemplateConstant    = "unable to inspect history database %s: %w"

	insertPassStatementConstant  = `INSERT INTO audit_passes (` + selectPassColumnsConstant + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertTallyStatementConstant = `INSERT INTO dag_tallies (pass_id, position, dag_id, run_count, fail_count) VALUES (?, ?, ?, ?, ?)`
	selectPassColumnsConstant    = `pass_id, started_at, duration_ms, window_start, window_end, prefix, suffix, active_dags, total_runs, total_fails, failure_ratio`
	selectRecentQueryConstant    = `SELECT ` + selectPassColumnsConstant + ` FROM audit_passes ORDER BY started_at DESC, rowid DESC LIMIT ?`
	selectPassQueryConstant      = `SELECT ` + selectPassColumnsConstant + ` FROM audit_passes WHERE pass_id = ?`
	selectTalliesQueryConstant   = `SELECT dag_id, run_count, fail_count FROM dag_tallies WHERE pass_id = ? ORDER BY position`
)

// ErrPassNotFound indicates that no audit pass with the requested id is stored.
var ErrPassNotFound = errors.New("audit pass not found")

// ErrDatabaseNotFound indicates that the history database file does not exist.
var ErrDatabaseNotFound = errors.New("history database not found")

// PassRecord summarizes one stored audit pass.
type PassRecord struct {
	PassID       string
	StartedAt    time.Time
	Duration     time.Duration
	WindowStart  time.Time
	WindowEnd    time.Time
	Prefix       string
	Suffix       string
	ActiveDAGs   int
	TotalRuns    int
	TotalFails   int
	FailureRatio float64
}

// Store records audit passes in SQLite.
type Store struct {
	database *sql.DB
}

// Open creates or opens the SQLite database at path and applies the schema.
// Parent directories are created when missing.
func Open(path string) (*Store, error) {
	trimmedPath := strings.TrimSpace(path)
	if len(trimmedPath) == 0 {
		return nil, errors.New(databasePathMissingMessageConstant)
	}

	directory := filepath.Dir(trimmedPath)
	if mkdirError := os.MkdirAll(directory, databaseDirectoryPermissionConstant); mkdirError != nil {
		return nil, fmt.Errorf(directoryCreateErrorTemplateConstant, directory, mkdirError)
	}

	database, openError := sql.Open(sqliteDriverNameConstant, trimmedPath)
	if openError != nil {
		return nil, fmt.Errorf(databaseOpenErrorTemplateConstant, trimmedPath, openError)
	}

	if pingError := database.Ping(); pingError != nil {
		database.Close()
		return nil, fmt.Errorf(databasePingErrorTemplateConstant, trimmedPath, pingError)
	}

	// SQLite allows a single writer.
	database.SetMaxOpenConns(1)
	database.SetMaxIdleConns(1)

	if pragmaError := applyPragmas(database); pragmaError != nil {
		database.Close()
		return nil, pragmaError
	}

	if _, schemaError := database.Exec(schemaSQL); schemaError != nil {
		database.Close()
		return nil, fmt.Errorf(schemaErrorTemplateConstant, schemaError)
	}

	return &Store{database: database}, nil
}

// OpenExisting opens a history database that must already exist on disk.
// Nothing is created when the file is missing.
func OpenExisting(path string) (*Store, error) {
	trimmedPath := strings.TrimSpace(path)
	if len(trimmedPath) == 0 {
		return nil, errors.New(databasePathMissingMessageConstant)
	}

	fileInfo, statError := os.Stat(trimmedPath)
	if statError != nil {
		if errors.Is(statError, fs.ErrNotExist) {
			return nil, fmt.Errorf(databaseMissingTemplateConstant, ErrDatabaseNotFound, trimmedPath)
		}
		return nil, fmt.Errorf(databaseStatErrorTemplateConstant, trimmedPath, statError)
	}
	if fileInfo.IsDir() {
		return nil, fmt.Errorf(databaseMissingTemplateConstant, ErrDatabaseNotFound, trimmedPath)
	}

	return Open(trimmedPath)
}

// Close releases the database connection.
func (store *Store) Close() error {
	if store == nil || store.database == nil {
		return nil
	}
	return store.database.Close()
}

// Record stores the pass summary and its per-DAG tallies in one transaction.
// A result without a pass id is assigned a fresh one.
func (store *Store) Record(executionContext context.Context, result audit.Result) error {
	passID := strings.TrimSpace(result.PassID)
	if len(passID) == 0 {
		passID = uuid.NewString()
	}

	transaction, beginError := store.database.BeginTx(executionContext, nil)
	if beginError != nil {
		return fmt.Errorf(recordErrorTemplateConstant, passID, beginError)
	}

	if _, insertError := transaction.ExecContext(executionContext, insertPassStatementConstant,
		passID,
		formatTimestamp(result.StartedAt),
		result.Duration.Milliseconds(),
		formatTimestamp(result.Window.Start),
		formatTimestamp(result.Window.End),
		result.Prefix,
		result.Suffix,
		result.ActiveDAGCount,
		result.Consolidation.TotalRuns,
		result.Consolidation.TotalFails,
		result.Consolidation.FailureRatio,
	); insertError != nil {
		transaction.Rollback()
		return fmt.Errorf(recordErrorTemplateConstant, passID, insertError)
	}

	for position, tally := range result.Tallies {
		if _, insertError := transaction.ExecContext(executionContext, insertTallyStatementConstant, passID, position, tally.DAGID, tally.RunCount, tally.FailCount); insertError != nil {
			transaction.Rollback()
			return fmt.Errorf(recordErrorTemplateConstant, passID, insertError)
		}
	}

	if commitError := transaction.Commit(); commitError != nil {
		return fmt.Errorf(recordErrorTemplateConstant, passID, commitError)
	}
	return nil
}

// Recent returns up to limit stored passes, newest first.
func (store *Store) Recent(executionContext context.Context, limit int) ([]PassRecord, error) {
	rows, queryError := store.database.QueryContext(executionContext, selectRecentQueryConstant, limit)
	if queryError != nil {
		return nil, fmt.Errorf(queryErrorTemplateConstant, queryError)
	}
	defer rows.Close()

	records := make([]PassRecord, 0)
	for rows.Next() {
		record, scanError := scanPassRecord(rows)
		if scanError != nil {
			return nil, scanError
		}
		records = append(records, record)
	}
	if rowsError := rows.Err(); rowsError != nil {
		return nil, fmt.Errorf(queryErrorTemplateConstant, rowsError)
	}

	return records, nil
}

// Load reconstructs the audit result stored under passID.
func (store *Store) Load(executionContext context.Context, passID string) (audit.Result, error) {
	trimmedPassID := strings.TrimSpace(passID)
	record, scanError := scanPassRecord(store.database.QueryRowContext(executionContext, selectPassQueryConstant, trimmedPassID))
	if errors.Is(scanError, sql.ErrNoRows) {
		return audit.Result{}, fmt.Errorf(passNotFoundTemplateConstant, ErrPassNotFound, trimmedPassID)
	}
	if scanError != nil {
		return audit.Result{}, scanError
	}

	rows, queryError := store.database.QueryContext(executionContext, selectTalliesQueryConstant, trimmedPassID)
	if queryError != nil {
		return audit.Result{}, fmt.Errorf(queryErrorTemplateConstant, queryError)
	}
	defer rows.Close()

	tallies := make([]audit.PerWorkflowTally, 0)
	for rows.Next() {
		var tally audit.PerWorkflowTally
		if scanError := rows.Scan(&tally.DAGID, &tally.RunCount, &tally.FailCount); scanError != nil {
			return audit.Result{}, fmt.Errorf(queryErrorTemplateConstant, scanError)
		}
		tallies = append(tallies, tally)
	}
	if rowsError := rows.Err(); rowsError != nil {
		return audit.Result{}, fmt.Errorf(queryErrorTemplateConstant, rowsError)
	}

	return audit.Result{
		PassID:         record.PassID,
		StartedAt:      record.StartedAt,
		Duration:       record.Duration,
		Window:         audit.Window{Start: record.WindowStart, End: record.WindowEnd},
		Prefix:         record.Prefix,
		Suffix:         record.Suffix,
		ActiveDAGCount: record.ActiveDAGs,
		Tallies:        tallies,
		Consolidation: audit.Consolidation{
			TotalRuns:    record.TotalRuns,
			TotalFails:   record.TotalFails,
			FailureRatio: record.FailureRatio,
		},
	}, nil
}

type rowScanner interface {
	Scan(destinations ...any) error
}

func scanPassRecord(scanner rowScanner) (PassRecord, error) {
	var (
		record         PassRecord
		startedAt      string
		windowStart    string
		windowEnd      string
		durationMillis int64
	)
	scanError := scanner.Scan(
		&record.PassID,
		&startedAt,
		&durationMillis,
		&windowStart,
		&windowEnd,
		&record.Prefix,
		&record.Suffix,
		&record.ActiveDAGs,
		&record.TotalRuns,
		&record.TotalFails,
		&record.FailureRatio,
	)
	if errors.Is(scanError, sql.ErrNoRows) {
		return PassRecord{}, scanError
	}
	if scanError != nil {
		return PassRecord{}, fmt.Errorf(queryErrorTemplateConstant, scanError)
	}

	var parseError error
	if record.StartedAt, parseError = parseTimestamp(startedAt); parseError != nil {
		return PassRecord{}, parseError
	}
	if record.WindowStart, parseError = parseTimestamp(windowStart); parseError != nil {
		return PassRecord{}, parseError
	}
	if record.WindowEnd, parseError = parseTimestamp(windowEnd); parseError != nil {
		return PassRecord{}, parseError
	}
	record.Duration = time.Duration(durationMillis) * time.Millisecond

	return record, nil
}

func applyPragmas(database *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, pragmaError := database.Exec(pragma); pragmaError != nil {
			return fmt.Errorf(pragmaErrorTemplateConstant, pragma, pragmaError)
		}
	}
	return nil
}

func formatTimestamp(instant time.Time) string {
	return instant.UTC().Format(timestampLayoutConstant)
}

func parseTimestamp(value string) (time.Time, error) {
	parsed, parseError := time.Parse(timestampLayoutConstant, value)
	if parseError != nil {
		return time.Time{}, fmt.Errorf(timestampParseErrorTemplateConstant, value, parseError)
	}
	return parsed, nil
}
