package mysql

import (
	"database/sql"
	"encoding/json"

	"github.com/bioinfoflow/bioinfoflow/domain/logger"
)

// logRepository is the durable logger.Repository implementation, grounded
// on the teacher's own log_repository.go (same batched-insert shape),
// generalized from execution/task scoping to run/step scoping.
type logRepository struct {
	db *sql.DB
}

// NewLogRepository opens dsn and ensures the log table exists.
func NewLogRepository(dsn string) (logger.Repository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	repo := &logRepository{db: db}
	if err := repo.initTables(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *logRepository) initTables() error {
	query := `CREATE TABLE IF NOT EXISTS run_logs (
		id VARCHAR(255) PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL,
		step_name VARCHAR(255) NOT NULL DEFAULT '',
		level VARCHAR(10) NOT NULL,
		message TEXT NOT NULL,
		attributes JSON,
		timestamp TIMESTAMP(6) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_run_id (run_id),
		INDEX idx_step_name (step_name),
		INDEX idx_level (level),
		INDEX idx_timestamp (timestamp)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	_, err := r.db.Exec(query)
	return err
}

func (r *logRepository) SaveLogs(entries []*logger.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `INSERT INTO run_logs (id, run_id, step_name, level, message, attributes, timestamp) VALUES `
	values := make([]interface{}, 0, len(entries)*7)

	for i, e := range entries {
		if i > 0 {
			query += ", "
		}
		query += "(?, ?, ?, ?, ?, ?, ?)"

		attributesJSON, err := json.Marshal(e.Attributes())
		if err != nil {
			return err
		}
		values = append(values, e.ID(), e.RunID(), e.StepName(), string(e.Level()), e.Message(), string(attributesJSON), e.Timestamp())
	}

	_, err := r.db.Exec(query, values...)
	return err
}

func (r *logRepository) GetLogs(runID string, limit, offset int) ([]*logger.Entry, error) {
	return r.query(`SELECT id, run_id, step_name, level, message, attributes, timestamp
			  FROM run_logs WHERE run_id = ?
			  ORDER BY timestamp DESC LIMIT ? OFFSET ?`, runID, limit, offset)
}

func (r *logRepository) GetStepLogs(runID, stepName string, limit, offset int) ([]*logger.Entry, error) {
	return r.query(`SELECT id, run_id, step_name, level, message, attributes, timestamp
			  FROM run_logs WHERE run_id = ? AND step_name = ?
			  ORDER BY timestamp DESC LIMIT ? OFFSET ?`, runID, stepName, limit, offset)
}

func (r *logRepository) query(query string, args ...interface{}) ([]*logger.Entry, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*logger.Entry
	for rows.Next() {
		var id, runID, stepName, level, message, attributesJSON string
		var timestamp string
		if err := rows.Scan(&id, &runID, &stepName, &level, &message, &attributesJSON, &timestamp); err != nil {
			return nil, err
		}
		var attributes map[string]interface{}
		if err := json.Unmarshal([]byte(attributesJSON), &attributes); err != nil {
			return nil, err
		}
		out = append(out, logger.NewEntry(runID, stepName, logger.Level(level), message, attributes))
	}
	return out, nil
}

func (r *logRepository) DeleteLogs(runID string) error {
	_, err := r.db.Exec(`DELETE FROM run_logs WHERE run_id = ?`, runID)
	return err
}
