package mysql

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/bioinfoflow/bioinfoflow/domain/run"
	"github.com/bioinfoflow/bioinfoflow/domain/workflow"
)

// stateRepository is the durable implementation of run.Repository (§4.7):
// workflows, runs and step executions in three tables, written with
// idempotent upserts keyed by natural identifiers, following the
// INSERT ... ON DUPLICATE KEY UPDATE convention already established by the
// teacher's execution_repository.go.
type stateRepository struct {
	db *sql.DB
}

// NewStateRepository opens dsn, verifies connectivity and ensures the
// schema exists.
func NewStateRepository(dsn string) (run.Repository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	repo := &stateRepository{db: db}
	if err := repo.initTables(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *stateRepository) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			name VARCHAR(255) NOT NULL,
			version VARCHAR(64) NOT NULL,
			description TEXT,
			config JSON,
			inputs JSON,
			metadata JSON,
			steps JSON,
			step_order JSON,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (name, version)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS runs (
			run_id VARCHAR(64) PRIMARY KEY,
			workflow_name VARCHAR(255) NOT NULL,
			workflow_version VARCHAR(64) NOT NULL,
			status VARCHAR(32) NOT NULL,
			start_time TIMESTAMP NULL,
			end_time TIMESTAMP NULL,
			inputs JSON,
			run_dir VARCHAR(1024),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_workflow (workflow_name, workflow_version),
			INDEX idx_status (status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS step_executions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(64) NOT NULL,
			step_name VARCHAR(255) NOT NULL,
			attempt INT NOT NULL,
			status VARCHAR(32) NOT NULL,
			start_time TIMESTAMP NULL,
			end_time TIMESTAMP NULL,
			exit_code INT,
			error_text TEXT,
			log_file VARCHAR(1024),
			produced_files JSON,
			UNIQUE KEY uk_run_step_attempt (run_id, step_name, attempt),
			INDEX idx_run_id (run_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}
	for _, q := range queries {
		if _, err := r.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// wireStep and wireWorkflow are the JSON-column shapes for a workflow's
// step definitions and declaration order.
type wireStep struct {
	Container string            `json:"container"`
	Command   string            `json:"command"`
	Resources workflow.Resources `json:"resources"`
	After     []string          `json:"after"`
}

func (r *stateRepository) CreateWorkflow(wf *workflow.Workflow) (*workflow.Workflow, error) {
	existing, err := r.GetWorkflowByNameVersion(wf.Name(), wf.Version())
	if err == nil && existing != nil {
		return existing, nil
	}

	configJSON, err := json.Marshal(wf.Config())
	if err != nil {
		return nil, err
	}
	inputsJSON, err := json.Marshal(wf.Inputs())
	if err != nil {
		return nil, err
	}
	metadataJSON, err := json.Marshal(wf.Metadata())
	if err != nil {
		return nil, err
	}

	steps := make(map[string]wireStep, len(wf.Steps()))
	for name, s := range wf.Steps() {
		steps[name] = wireStep{Container: s.Container(), Command: s.Command(), Resources: s.Resources(), After: s.After()}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return nil, err
	}
	orderJSON, err := json.Marshal(wf.StepOrder())
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO workflows (name, version, description, config, inputs, metadata, steps, step_order)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE name = name`
	if _, err := r.db.Exec(query, wf.Name(), wf.Version(), wf.Description(),
		string(configJSON), string(inputsJSON), string(metadataJSON), string(stepsJSON), string(orderJSON)); err != nil {
		return nil, err
	}
	return wf, nil
}

func (r *stateRepository) GetWorkflowByNameVersion(name, version string) (*workflow.Workflow, error) {
	query := `SELECT description, config, inputs, metadata, steps, step_order FROM workflows WHERE name = ? AND version = ?`
	row := r.db.QueryRow(query, name, version)

	var description, configJSON, inputsJSON, metadataJSON, stepsJSON, orderJSON string
	if err := row.Scan(&description, &configJSON, &inputsJSON, &metadataJSON, &stepsJSON, &orderJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, run.NewRepositoryError("workflow not found: %s/%s", name, version)
		}
		return nil, err
	}
	return decodeWorkflow(name, version, description, configJSON, inputsJSON, metadataJSON, stepsJSON, orderJSON)
}

func (r *stateRepository) ListWorkflows() ([]*workflow.Workflow, error) {
	rows, err := r.db.Query(`SELECT name, version, description, config, inputs, metadata, steps, step_order FROM workflows ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*workflow.Workflow
	for rows.Next() {
		var name, version, description, configJSON, inputsJSON, metadataJSON, stepsJSON, orderJSON string
		if err := rows.Scan(&name, &version, &description, &configJSON, &inputsJSON, &metadataJSON, &stepsJSON, &orderJSON); err != nil {
			return nil, err
		}
		wf, err := decodeWorkflow(name, version, description, configJSON, inputsJSON, metadataJSON, stepsJSON, orderJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

func decodeWorkflow(name, version, description, configJSON, inputsJSON, metadataJSON, stepsJSON, orderJSON string) (*workflow.Workflow, error) {
	var config map[string]workflow.Value
	if err := json.Unmarshal([]byte(configJSON), &config); err != nil {
		return nil, err
	}
	var inputs map[string]string
	if err := json.Unmarshal([]byte(inputsJSON), &inputs); err != nil {
		return nil, err
	}
	var metadata workflow.Metadata
	if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
		return nil, err
	}
	var steps map[string]wireStep
	if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
		return nil, err
	}
	var order []string
	if err := json.Unmarshal([]byte(orderJSON), &order); err != nil {
		return nil, err
	}

	wf := workflow.NewWorkflow(name, version)
	wf.SetDescription(description)
	wf.SetInputs(inputs)
	wf.SetConfig(config)
	wf.SetMetadata(metadata)
	for _, stepName := range order {
		s := steps[stepName]
		if err := wf.AddStep(workflow.NewStepDefinition(stepName, s.Container, s.Command, s.Resources, s.After)); err != nil {
			return nil, err
		}
	}
	return wf, nil
}

func (r *stateRepository) CreateRun(rn *run.Run) error {
	inputsJSON, err := json.Marshal(rn.Inputs())
	if err != nil {
		return err
	}
	query := `INSERT INTO runs (run_id, workflow_name, workflow_version, status, start_time, end_time, inputs, run_dir)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE status = VALUES(status)`
	_, err = r.db.Exec(query, rn.RunID(), rn.WorkflowName(), rn.WorkflowVersion(), string(rn.Status()),
		nullableTime(rn.StartTime()), nullableTime(rn.EndTime()), string(inputsJSON), rn.RunDir())
	return err
}

func (r *stateRepository) UpdateRunStatus(rn *run.Run) error {
	query := `UPDATE runs SET status = ?, start_time = ?, end_time = ? WHERE run_id = ?`
	_, err := r.db.Exec(query, string(rn.Status()), nullableTime(rn.StartTime()), nullableTime(rn.EndTime()), rn.RunID())
	return err
}

func (r *stateRepository) GetRunWithSteps(runID string) (*run.Run, error) {
	query := `SELECT run_id, workflow_name, workflow_version, status, start_time, end_time, inputs, run_dir FROM runs WHERE run_id = ?`
	row := r.db.QueryRow(query, runID)

	var id, wfName, wfVersion, status, inputsJSON, runDir string
	var startTime, endTime sql.NullTime
	if err := row.Scan(&id, &wfName, &wfVersion, &status, &startTime, &endTime, &inputsJSON, &runDir); err != nil {
		if err == sql.ErrNoRows {
			return nil, run.NewRepositoryError("run not found: %s", runID)
		}
		return nil, err
	}
	var inputs map[string]string
	if err := json.Unmarshal([]byte(inputsJSON), &inputs); err != nil {
		return nil, err
	}

	rn := run.NewRun(id, wfName, wfVersion, inputs, runDir)
	rn.SetStatus(run.Status(status))
	if startTime.Valid {
		rn.Start(startTime.Time)
	}
	if endTime.Valid {
		rn.Finish(endTime.Time, run.Status(status))
	}

	steps, err := r.stepExecutionsForRun(runID)
	if err != nil {
		return nil, err
	}
	for _, se := range steps {
		rn.PutStepExecution(se)
	}
	return rn, nil
}

func (r *stateRepository) stepExecutionsForRun(runID string) ([]*run.StepExecution, error) {
	query := `SELECT step_name, attempt, status, start_time, end_time, exit_code, error_text, log_file, produced_files
			  FROM step_executions WHERE run_id = ? ORDER BY id ASC`
	rows, err := r.db.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*run.StepExecution
	for rows.Next() {
		var stepName, status, errorText, logFile, producedJSON string
		var attempt, exitCode int
		var startTime, endTime sql.NullTime
		if err := rows.Scan(&stepName, &attempt, &status, &startTime, &endTime, &exitCode, &errorText, &logFile, &producedJSON); err != nil {
			return nil, err
		}
		var produced []string
		_ = json.Unmarshal([]byte(producedJSON), &produced)

		se := run.NewStepExecution(runID, stepName, attempt)
		se.SetLogFile(logFile)
		if startTime.Valid {
			se.Start(startTime.Time)
		}
		if run.Status(status) != run.StatusPending && run.Status(status) != run.StatusRunning {
			se.Finish(endTime.Time, run.Status(status), exitCode, errorText, produced)
		}
		out = append(out, se)
	}
	return out, nil
}

func (r *stateRepository) ListRuns(filter run.ListFilter) ([]*run.Run, error) {
	query := `SELECT run_id FROM runs`
	args := []interface{}{}
	if filter.WorkflowName != "" {
		query += ` WHERE workflow_name = ?`
		args = append(args, filter.WorkflowName)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	out := make([]*run.Run, 0, len(ids))
	for _, id := range ids {
		rn, err := r.GetRunWithSteps(id)
		if err != nil {
			return nil, err
		}
		out = append(out, rn)
	}
	return out, nil
}

func (r *stateRepository) DeleteRun(runID string) error {
	rn, err := r.GetRunWithSteps(runID)
	if err != nil {
		return err
	}
	if !rn.Status().IsTerminal() {
		return run.NewRepositoryError("cannot delete run %s: status %s is not terminal", runID, rn.Status())
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM step_executions WHERE run_id = ?`, runID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *stateRepository) AddStepExecution(se *run.StepExecution) error {
	return r.upsertStepExecution(se)
}

func (r *stateRepository) UpdateStepExecution(se *run.StepExecution) error {
	return r.upsertStepExecution(se)
}

func (r *stateRepository) upsertStepExecution(se *run.StepExecution) error {
	snap := se.Snapshot()
	producedJSON, err := json.Marshal(snap.ProducedFiles)
	if err != nil {
		return err
	}
	query := `INSERT INTO step_executions (run_id, step_name, attempt, status, start_time, end_time, exit_code, error_text, log_file, produced_files)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			  status = VALUES(status), start_time = VALUES(start_time), end_time = VALUES(end_time),
			  exit_code = VALUES(exit_code), error_text = VALUES(error_text), log_file = VALUES(log_file),
			  produced_files = VALUES(produced_files)`
	_, err = r.db.Exec(query, snap.RunID, snap.StepName, snap.Attempt, string(snap.Status),
		nullableTime(snap.StartTime), nullableTime(snap.EndTime), snap.ExitCode, snap.ErrorText, snap.LogFile, string(producedJSON))
	if err != nil {
		return run.NewRepositoryError("upsert step_execution %s/%s#%d: %v", snap.RunID, snap.StepName, snap.Attempt, err)
	}
	return nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
