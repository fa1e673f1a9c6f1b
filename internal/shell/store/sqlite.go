package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/fnhost/internal/core/credential"
	"github.com/artpar/fnhost/internal/core/function"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout formats every timestamp column. It is fixed width so that text
// order matches time order in ORDER BY. Rows are parsed with RFC3339Nano,
// which also reads values written without a fraction.
const (
	timeLayout      = "2006-01-02T15:04:05.000000000Z07:00"
	timeParseLayout = time.RFC3339Nano
)

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	// SQLite allows a single writer, and an in-memory database exists only on
	// the connection that created it.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return NewStoreError("Ping", "", "", err.Error(), ErrConnectionFailed)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateFunction(ctx context.Context, fn *function.Function) error {
	return createFunction(ctx, s.db, fn)
}

func (s *SQLiteStore) GetFunction(ctx context.Context, id string) (*function.Function, error) {
	return getFunction(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateFunction(ctx context.Context, fn *function.Function) error {
	return updateFunction(ctx, s.db, fn)
}

func (s *SQLiteStore) DeleteFunction(ctx context.Context, id string) error {
	return deleteFunction(ctx, s.db, id)
}

func (s *SQLiteStore) ListFunctions(ctx context.Context, opts FunctionListOptions) ([]function.Function, int, error) {
	return listFunctions(ctx, s.db, opts)
}

func (s *SQLiteStore) CreateCredential(ctx context.Context, cred *credential.Credential) error {
	return createCredential(ctx, s.db, cred)
}

func (s *SQLiteStore) GetCredential(ctx context.Context, id string) (*credential.Credential, error) {
	return getCredential(ctx, s.db, id)
}

func (s *SQLiteStore) DeleteCredential(ctx context.Context, id string) error {
	return deleteCredential(ctx, s.db, id)
}

func (s *SQLiteStore) ListCredentials(ctx context.Context, opts ListOptions) ([]credential.Credential, error) {
	return listCredentials(ctx, s.db, opts)
}

func (s *SQLiteStore) TouchCredential(ctx context.Context, id string, usedAt time.Time) error {
	return touchCredential(ctx, s.db, id, usedAt)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateFunction(ctx context.Context, fn *function.Function) error {
	return createFunction(ctx, s.tx, fn)
}

func (s *txSQLiteStore) GetFunction(ctx context.Context, id string) (*function.Function, error) {
	return getFunction(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateFunction(ctx context.Context, fn *function.Function) error {
	return updateFunction(ctx, s.tx, fn)
}

func (s *txSQLiteStore) DeleteFunction(ctx context.Context, id string) error {
	return deleteFunction(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListFunctions(ctx context.Context, opts FunctionListOptions) ([]function.Function, int, error) {
	return listFunctions(ctx, s.tx, opts)
}

func (s *txSQLiteStore) CreateCredential(ctx context.Context, cred *credential.Credential) error {
	return createCredential(ctx, s.tx, cred)
}

func (s *txSQLiteStore) GetCredential(ctx context.Context, id string) (*credential.Credential, error) {
	return getCredential(ctx, s.tx, id)
}

func (s *txSQLiteStore) DeleteCredential(ctx context.Context, id string) error {
	return deleteCredential(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListCredentials(ctx context.Context, opts ListOptions) ([]credential.Credential, error) {
	return listCredentials(ctx, s.tx, opts)
}

func (s *txSQLiteStore) TouchCredential(ctx context.Context, id string, usedAt time.Time) error {
	return touchCredential(ctx, s.tx, id, usedAt)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just execute the function
	return fn(s)
}

func (s *txSQLiteStore) Ping(ctx context.Context) error {
	return nil
}

func (s *txSQLiteStore) Close() error {
	return nil
}

// =============================================================================
// Function Rows
// =============================================================================

// functionRow represents a function row in the database.
type functionRow struct {
	ID             string  `db:"id"`
	Name           string  `db:"name"`
	Description    string  `db:"description"`
	SourceType     string  `db:"source_type"`
	Runtime        string  `db:"runtime"`
	Handler        string  `db:"handler"`
	TimeoutSeconds int     `db:"timeout_seconds"`
	MemoryMB       int     `db:"memory_mb"`
	InlineCode     string  `db:"inline_code"`
	RepoURL        string  `db:"repo_url"`
	Branch         string  `db:"branch"`
	FilePath       string  `db:"file_path"`
	InputSchema    string  `db:"input_schema"`
	OutputSchema   string  `db:"output_schema"`
	CredentialID   string  `db:"credential_id"`
	Status         string  `db:"status"`
	CreatedAt      string  `db:"created_at"`
	UpdatedAt      string  `db:"updated_at"`
	LastDeployedAt *string `db:"last_deployed_at"`
}

func functionToRow(fn *function.Function) map[string]any {
	return map[string]any{
		"id":               fn.ID,
		"name":             fn.Name,
		"description":      fn.Description,
		"source_type":      string(fn.SourceType),
		"runtime":          string(fn.Runtime),
		"handler":          fn.Handler,
		"timeout_seconds":  fn.Timeout,
		"memory_mb":        fn.Memory,
		"inline_code":      fn.InlineCode,
		"repo_url":         fn.RepoURL,
		"branch":           fn.Branch,
		"file_path":        fn.FilePath,
		"input_schema":     fn.InputSchema,
		"output_schema":    fn.OutputSchema,
		"credential_id":    fn.CredentialID,
		"status":           string(fn.Status),
		"created_at":       fn.CreatedAt.UTC().Format(timeLayout),
		"updated_at":       fn.UpdatedAt.UTC().Format(timeLayout),
		"last_deployed_at": formatOptionalTime(fn.LastDeployedAt),
	}
}

func rowToFunction(row *functionRow) (*function.Function, error) {
	createdAt, err := time.Parse(timeParseLayout, row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToFunction", EntityFunction, row.ID, "invalid created_at", ErrInvalidData)
	}
	updatedAt, err := time.Parse(timeParseLayout, row.UpdatedAt)
	if err != nil {
		return nil, NewStoreError("rowToFunction", EntityFunction, row.ID, "invalid updated_at", ErrInvalidData)
	}
	lastDeployed, err := parseOptionalTime(row.LastDeployedAt)
	if err != nil {
		return nil, NewStoreError("rowToFunction", EntityFunction, row.ID, "invalid last_deployed_at", ErrInvalidData)
	}

	sourceType := function.SourceType(row.SourceType)
	if sourceType == "" {
		sourceType = function.DefaultSourceType
	}

	return &function.Function{
		Config: function.Config{
			Name:         row.Name,
			Description:  row.Description,
			SourceType:   sourceType,
			Runtime:      function.Runtime(row.Runtime),
			Handler:      row.Handler,
			Timeout:      row.TimeoutSeconds,
			Memory:       row.MemoryMB,
			InlineCode:   row.InlineCode,
			RepoURL:      row.RepoURL,
			Branch:       row.Branch,
			FilePath:     row.FilePath,
			InputSchema:  row.InputSchema,
			OutputSchema: row.OutputSchema,
			CredentialID: row.CredentialID,
		},
		ID:             row.ID,
		Status:         function.Status(row.Status),
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		LastDeployedAt: lastDeployed,
	}, nil
}

// =============================================================================
// Function Operations
// =============================================================================

func createFunction(ctx context.Context, exec executor, fn *function.Function) error {
	query := `
		INSERT INTO functions (
			id, name, description, source_type, runtime, handler,
			timeout_seconds, memory_mb, inline_code, repo_url, branch, file_path,
			input_schema, output_schema, credential_id, status,
			created_at, updated_at, last_deployed_at
		) VALUES (
			:id, :name, :description, :source_type, :runtime, :handler,
			:timeout_seconds, :memory_mb, :inline_code, :repo_url, :branch, :file_path,
			:input_schema, :output_schema, :credential_id, :status,
			:created_at, :updated_at, :last_deployed_at
		)`

	_, err := exec.NamedExecContext(ctx, query, functionToRow(fn))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: functions.id") {
			return NewStoreError("CreateFunction", EntityFunction, fn.ID, "function with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateFunction", EntityFunction, fn.ID, err.Error(), err)
	}

	return nil
}

func getFunction(ctx context.Context, exec executor, id string) (*function.Function, error) {
	query := `SELECT * FROM functions WHERE id = ?`

	var row functionRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("GetFunction", EntityFunction, id)
		}
		return nil, NewStoreError("GetFunction", EntityFunction, id, err.Error(), err)
	}

	return rowToFunction(&row)
}

func updateFunction(ctx context.Context, exec executor, fn *function.Function) error {
	query := `
		UPDATE functions SET
			name = :name,
			description = :description,
			source_type = :source_type,
			runtime = :runtime,
			handler = :handler,
			timeout_seconds = :timeout_seconds,
			memory_mb = :memory_mb,
			inline_code = :inline_code,
			repo_url = :repo_url,
			branch = :branch,
			file_path = :file_path,
			input_schema = :input_schema,
			output_schema = :output_schema,
			credential_id = :credential_id,
			status = :status,
			updated_at = :updated_at,
			last_deployed_at = :last_deployed_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, functionToRow(fn))
	if err != nil {
		return NewStoreError("UpdateFunction", EntityFunction, fn.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return notFound("UpdateFunction", EntityFunction, fn.ID)
	}

	return nil
}

func deleteFunction(ctx context.Context, exec executor, id string) error {
	query := `DELETE FROM functions WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, id)
	if err != nil {
		return NewStoreError("DeleteFunction", EntityFunction, id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return notFound("DeleteFunction", EntityFunction, id)
	}

	return nil
}

// likePattern builds a LIKE pattern matching s anywhere, with wildcards in s
// escaped.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}

func listFunctions(ctx context.Context, exec executor, opts FunctionListOptions) ([]function.Function, int, error) {
	page := opts.ListOptions.Normalize()
	pattern := likePattern(opts.Search)

	var total int
	countQuery := `SELECT COUNT(*) FROM functions WHERE LOWER(name) LIKE ? ESCAPE '\'`
	if err := exec.GetContext(ctx, &total, countQuery, pattern); err != nil {
		return nil, 0, NewStoreError("ListFunctions", EntityFunction, "", err.Error(), err)
	}

	query := `
		SELECT * FROM functions
		WHERE LOWER(name) LIKE ? ESCAPE '\'
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?`

	var rows []functionRow
	if err := exec.SelectContext(ctx, &rows, query, pattern, page.Limit, page.Offset); err != nil {
		return nil, 0, NewStoreError("ListFunctions", EntityFunction, "", err.Error(), err)
	}

	functions := make([]function.Function, 0, len(rows))
	for _, row := range rows {
		fn, err := rowToFunction(&row)
		if err != nil {
			return nil, 0, err
		}
		functions = append(functions, *fn)
	}

	return functions, total, nil
}

// =============================================================================
// Credential Operations
// =============================================================================

// credentialRow represents a credential row in the database.
type credentialRow struct {
	ID              string  `db:"id"`
	Name            string  `db:"name"`
	Type            string  `db:"type"`
	Description     string  `db:"description"`
	Hint            string  `db:"hint"`
	SecretEncrypted []byte  `db:"secret_encrypted"`
	CreatedAt       string  `db:"created_at"`
	LastUsedAt      *string `db:"last_used_at"`
}

func rowToCredential(row *credentialRow) (*credential.Credential, error) {
	createdAt, err := time.Parse(timeParseLayout, row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToCredential", EntityCredential, row.ID, "invalid created_at", ErrInvalidData)
	}
	lastUsed, err := parseOptionalTime(row.LastUsedAt)
	if err != nil {
		return nil, NewStoreError("rowToCredential", EntityCredential, row.ID, "invalid last_used_at", ErrInvalidData)
	}

	return &credential.Credential{
		ID:              row.ID,
		Name:            row.Name,
		Type:            credential.Type(row.Type),
		Description:     row.Description,
		Hint:            row.Hint,
		SecretEncrypted: row.SecretEncrypted,
		CreatedAt:       createdAt,
		LastUsedAt:      lastUsed,
	}, nil
}

func createCredential(ctx context.Context, exec executor, cred *credential.Credential) error {
	query := `
		INSERT INTO credentials (
			id, name, type, description, hint, secret_encrypted, created_at, last_used_at
		) VALUES (
			:id, :name, :type, :description, :hint, :secret_encrypted, :created_at, :last_used_at
		)`

	row := map[string]any{
		"id":               cred.ID,
		"name":             cred.Name,
		"type":             string(cred.Type),
		"description":      cred.Description,
		"hint":             cred.Hint,
		"secret_encrypted": cred.SecretEncrypted,
		"created_at":       cred.CreatedAt.UTC().Format(timeLayout),
		"last_used_at":     formatOptionalTime(cred.LastUsedAt),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: credentials.id") {
			return NewStoreError("CreateCredential", EntityCredential, cred.ID, "credential with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateCredential", EntityCredential, cred.ID, err.Error(), err)
	}

	return nil
}

func getCredential(ctx context.Context, exec executor, id string) (*credential.Credential, error) {
	query := `SELECT * FROM credentials WHERE id = ?`

	var row credentialRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("GetCredential", EntityCredential, id)
		}
		return nil, NewStoreError("GetCredential", EntityCredential, id, err.Error(), err)
	}

	return rowToCredential(&row)
}

func deleteCredential(ctx context.Context, exec executor, id string) error {
	query := `DELETE FROM credentials WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, id)
	if err != nil {
		return NewStoreError("DeleteCredential", EntityCredential, id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return notFound("DeleteCredential", EntityCredential, id)
	}

	return nil
}

func listCredentials(ctx context.Context, exec executor, opts ListOptions) ([]credential.Credential, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM credentials ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`

	var rows []credentialRow
	if err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListCredentials", EntityCredential, "", err.Error(), err)
	}

	creds := make([]credential.Credential, 0, len(rows))
	for _, row := range rows {
		cred, err := rowToCredential(&row)
		if err != nil {
			return nil, err
		}
		creds = append(creds, *cred)
	}

	return creds, nil
}

func touchCredential(ctx context.Context, exec executor, id string, usedAt time.Time) error {
	query := `UPDATE credentials SET last_used_at = ? WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, usedAt.UTC().Format(timeLayout), id)
	if err != nil {
		return NewStoreError("TouchCredential", EntityCredential, id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return notFound("TouchCredential", EntityCredential, id)
	}

	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timeLayout)
	return &s
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(timeParseLayout, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
