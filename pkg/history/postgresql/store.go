// Package postgresql stores run history in PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/history"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

const defaultListLimit = 100

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore connects to databaseURL and brings the schema up to date.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: database, logger: logger}, nil
}

func (s *Store) Save(ctx context.Context, record history.Record) error {
	triggerJSON, err := json.Marshal(record.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	outputJSON, err := json.Marshal(record.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	nodesJSON, err := json.Marshal(record.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal node statuses: %w", err)
	}

	query := `
		INSERT INTO run_history (
			execution_id, workflow_id, status, trigger_data, output,
			error_message, failed_step, node_statuses, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (execution_id) DO UPDATE SET
			status = EXCLUDED.status,
			output = EXCLUDED.output,
			error_message = EXCLUDED.error_message,
			failed_step = EXCLUDED.failed_step,
			node_statuses = EXCLUDED.node_statuses,
			finished_at = EXCLUDED.finished_at
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ExecutionID,
		record.WorkflowID,
		record.Status,
		triggerJSON,
		outputJSON,
		record.Error,
		record.FailedStep,
		nodesJSON,
		record.StartedAt,
		record.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, executionID string) (*history.Record, error) {
	query := `
		SELECT execution_id, workflow_id, status, trigger_data, output,
			   error_message, failed_step, node_statuses, started_at, finished_at
		FROM run_history
		WHERE execution_id = $1
	`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", history.ErrRecordNotFound, executionID)
		}

		return nil, fmt.Errorf("failed to scan run record: %w", err)
	}

	return record, nil
}

func (s *Store) List(ctx context.Context, workflowID string, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT execution_id, workflow_id, status, trigger_data, output,
			   error_message, failed_step, node_statuses, started_at, finished_at
		FROM run_history
		WHERE ($1::text = '' OR workflow_id = $1::text)
		ORDER BY started_at DESC, execution_id
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run records: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.ErrorContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	var records []history.Record

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}

		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run records: %w", err)
	}

	return records, nil
}

// Close closes the database connection.
func (s *Store) Close(context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*history.Record, error) {
	var (
		record      history.Record
		status      string
		triggerJSON []byte
		outputJSON  []byte
		nodesJSON   []byte
	)

	err := row.Scan(
		&record.ExecutionID,
		&record.WorkflowID,
		&status,
		&triggerJSON,
		&outputJSON,
		&record.Error,
		&record.FailedStep,
		&nodesJSON,
		&record.StartedAt,
		&record.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = models.RunStatus(status)

	if err := unmarshalJSON(triggerJSON, &record.TriggerData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
	}

	if err := unmarshalJSON(outputJSON, &record.Output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output: %w", err)
	}

	if err := unmarshalJSON(nodesJSON, &record.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node statuses: %w", err)
	}

	return &record, nil
}

func unmarshalJSON(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, out)
}
