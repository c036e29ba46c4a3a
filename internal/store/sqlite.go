package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/wwan-labs/wwan-avs/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			address TEXT PRIMARY KEY,
			metadata TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			reputation INTEGER NOT NULL DEFAULT 100,
			registered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS agent_index (
			address TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS allowances (
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			allowance TEXT NOT NULL,
			PRIMARY KEY (user_id, agent_id)
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			creator TEXT NOT NULL,
			assigned_agent TEXT,
			task_type TEXT NOT NULL,
			task_data TEXT NOT NULL,
			payment TEXT NOT NULL DEFAULT '0',
			status TEXT NOT NULL,
			signature TEXT,
			result_ref TEXT,
			validation TEXT,
			proof TEXT,
			ledger_tx TEXT,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_agent ON tasks(assigned_agent)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertAgent creates or overwrites an agent record and ensures its index
// entry exists exactly once.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, agent *domain.Agent) error {
	meta, err := json.Marshal(agent.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal agent metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (address, metadata, is_active, reputation, registered_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(address) DO UPDATE SET
			metadata = excluded.metadata,
			is_active = excluded.is_active,
			reputation = excluded.reputation`,
		agent.Address, string(meta), boolToInt(agent.IsActive), agent.Reputation, agent.RegisteredAt)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO agent_index (address) VALUES (?)`, agent.Address)
	return err
}

// GetAgent returns the agent record, or nil when absent.
func (s *SQLiteStore) GetAgent(ctx context.Context, address string) (*domain.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT address, metadata, is_active, reputation, registered_at
		 FROM agents WHERE address = ?`, address)
	return scanAgent(row)
}

// ListAgentIndex returns the addresses in the agent index.
func (s *SQLiteStore) ListAgentIndex(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address FROM agent_index ORDER BY address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// DeleteAgent removes the agent record and purges its index entry.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, address string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE address = ?`, address); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM agent_index WHERE address = ?`, address)
	return err
}

// UpdateAgentActivity flips the active flag.
func (s *SQLiteStore) UpdateAgentActivity(ctx context.Context, address string, active bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET is_active = ? WHERE address = ?`, boolToInt(active), address)
	if err != nil {
		return false, err
	}
	return oneAffected(res)
}

// UpdateAgentReputation sets the reputation score.
func (s *SQLiteStore) UpdateAgentReputation(ctx context.Context, address string, reputation int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET reputation = ? WHERE address = ?`, reputation, address)
	if err != nil {
		return false, err
	}
	return oneAffected(res)
}

// SetAllowance sets the allowance for a (user, agent) pair, last write wins.
func (s *SQLiteStore) SetAllowance(ctx context.Context, userID, agentID, amount string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO allowances (user_id, agent_id, allowance) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, agent_id) DO UPDATE SET allowance = excluded.allowance`,
		userID, agentID, amount)
	return err
}

// GetAllowance returns the allowance for a (user, agent) pair, or nil.
func (s *SQLiteStore) GetAllowance(ctx context.Context, userID, agentID string) (*domain.Allowance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, agent_id, allowance FROM allowances WHERE user_id = ? AND agent_id = ?`,
		userID, agentID)
	var a domain.Allowance
	err := row.Scan(&a.UserID, &a.AgentID, &a.Allowance)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAllowances returns all allowances granted by a user.
func (s *SQLiteStore) ListAllowances(ctx context.Context, userID string) ([]domain.Allowance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, agent_id, allowance FROM allowances WHERE user_id = ? ORDER BY agent_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Allowance
	for rows.Next() {
		var a domain.Allowance
		if err := rows.Scan(&a.UserID, &a.AgentID, &a.Allowance); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateTask inserts a new task record.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *domain.Task) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (task_id, creator, assigned_agent, task_type, task_data, payment, status, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		task.ID, task.Creator, nullString(task.AssignedAgent), task.TaskType, task.TaskData,
		task.Payment, task.Status, task.CreatedAt, task.CreatedAt)
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("task %s already exists: %w", task.ID, domain.ErrConflict)
	}
	return err
}

// GetTask returns the task record, or nil when absent.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelect+` WHERE task_id = ?`, taskID)
	return scanTask(row)
}

// ListTasks returns all tasks, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelect+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// AssignTask sets the assigned agent iff the task is still in the expected
// prior status.
func (s *SQLiteStore) AssignTask(ctx context.Context, taskID, agent string, from domain.TaskStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET assigned_agent = ?, status = ?, version = version + 1, updated_at = ?
		 WHERE task_id = ? AND status = ?`,
		agent, domain.TaskStatusAssigned, time.Now(), taskID, from)
	if err != nil {
		return false, err
	}
	return oneAffected(res)
}

// RecordTaskResult stores the agent signature and result reference iff the
// task is still in the expected prior status. Exactly one of two racing
// writers observes a true return.
func (s *SQLiteStore) RecordTaskResult(ctx context.Context, taskID string, from domain.TaskStatus, signature, resultRef string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET signature = ?, result_ref = ?, status = ?, version = version + 1, updated_at = ?
		 WHERE task_id = ? AND status = ?`,
		signature, nullString(resultRef), domain.TaskStatusCompleted, time.Now(), taskID, from)
	if err != nil {
		return false, err
	}
	return oneAffected(res)
}

// SetTaskValidation writes the validation outcome conditionally.
func (s *SQLiteStore) SetTaskValidation(ctx context.Context, taskID string, from, to domain.TaskStatus, validation []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET validation = ?, status = ?, version = version + 1, updated_at = ?
		 WHERE task_id = ? AND status = ?`,
		string(validation), to, time.Now(), taskID, from)
	if err != nil {
		return false, err
	}
	return oneAffected(res)
}

// SetTaskProof attaches an attestation conditionally.
func (s *SQLiteStore) SetTaskProof(ctx context.Context, taskID string, from, to domain.TaskStatus, proof []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET proof = ?, status = ?, version = version + 1, updated_at = ?
		 WHERE task_id = ? AND status = ?`,
		string(proof), to, time.Now(), taskID, from)
	if err != nil {
		return false, err
	}
	return oneAffected(res)
}

// SetTaskStatus advances the status conditionally without touching payload
// columns.
func (s *SQLiteStore) SetTaskStatus(ctx context.Context, taskID string, from, to domain.TaskStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, version = version + 1, updated_at = ?
		 WHERE task_id = ? AND status = ?`,
		to, time.Now(), taskID, from)
	if err != nil {
		return false, err
	}
	return oneAffected(res)
}

// FinalizeTask records the confirming ledger transaction conditionally.
func (s *SQLiteStore) FinalizeTask(ctx context.Context, taskID string, from domain.TaskStatus, ledgerTx string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET ledger_tx = ?, status = ?, version = version + 1, updated_at = ?
		 WHERE task_id = ? AND status = ?`,
		ledgerTx, domain.TaskStatusFinalized, time.Now(), taskID, from)
	if err != nil {
		return false, err
	}
	return oneAffected(res)
}

// MarkTaskFailed records a failure outcome. Unlike the forward transitions
// this is not conditional on a single prior status, but it never overwrites
// an already-finalized task.
func (s *SQLiteStore) MarkTaskFailed(ctx context.Context, taskID string, to domain.TaskStatus, validation []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET validation = COALESCE(?, validation), status = ?, version = version + 1, updated_at = ?
		 WHERE task_id = ? AND status != ?`,
		nullStringBytes(validation), to, time.Now(), taskID, domain.TaskStatusFinalized)
	return err
}

const taskSelect = `SELECT task_id, creator, assigned_agent, task_type, task_data, payment, status,
	signature, result_ref, validation, proof, ledger_tx, version, created_at, updated_at FROM tasks`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row *sql.Row) (*domain.Task, error) {
	t, err := scanTaskRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func scanTaskRow(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	var assigned, signature, resultRef, validation, proof, ledgerTx sql.NullString
	err := row.Scan(&t.ID, &t.Creator, &assigned, &t.TaskType, &t.TaskData, &t.Payment, &t.Status,
		&signature, &resultRef, &validation, &proof, &ledgerTx, &t.Version, &t.CreatedAt, &t.LastUpdated)
	if err != nil {
		return nil, err
	}
	t.AssignedAgent = assigned.String
	t.Signature = signature.String
	t.ResultRef = resultRef.String
	t.LedgerTx = ledgerTx.String
	if validation.Valid {
		var v domain.ValidationResult
		if err := json.Unmarshal([]byte(validation.String), &v); err != nil {
			return nil, fmt.Errorf("failed to decode validation for task %s: %w", t.ID, err)
		}
		t.Validation = &v
	}
	if proof.Valid {
		var p domain.Proof
		if err := json.Unmarshal([]byte(proof.String), &p); err != nil {
			return nil, fmt.Errorf("failed to decode proof for task %s: %w", t.ID, err)
		}
		t.Proof = &p
	}
	return &t, nil
}

func scanAgent(row *sql.Row) (*domain.Agent, error) {
	var a domain.Agent
	var meta string
	var active int
	err := row.Scan(&a.Address, &meta, &active, &a.Reputation, &a.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.IsActive = active != 0
	if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode agent metadata: %w", err)
	}
	return &a, nil
}

func oneAffected(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
