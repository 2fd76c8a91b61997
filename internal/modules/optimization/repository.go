package optimization

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Run is one persisted optimization call.
type Run struct {
	ID           string             `json:"id"`
	SessionID    string             `json:"session_id"`
	Strategy     Strategy           `json:"strategy"`
	Tickers      []string           `json:"tickers"`
	Start        time.Time          `json:"start_date"`
	End          time.Time          `json:"end_date"`
	RiskFreeRate float64            `json:"risk_free_rate"`
	TargetReturn *float64           `json:"target_return,omitempty"`
	Result       OptimizationResult `json:"result"`
	Duration     time.Duration      `json:"duration_ms"`
	CreatedAt    time.Time          `json:"created_at"`
}

// RunRepository stores optimization runs in the frontier database.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Save inserts a run. The run ID must be unique.
func (r *RunRepository) Save(run *Run) error {
	resultJSON, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal run result: %w", err)
	}

	var target sql.NullFloat64
	if run.TargetReturn != nil {
		target = sql.NullFloat64{Float64: *run.TargetReturn, Valid: true}
	}

	_, err = r.db.Exec(`
		INSERT INTO optimization_runs
			(id, session_id, strategy, tickers, start_date, end_date, risk_free_rate,
			 target_return, success, message, result_json, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.SessionID,
		string(run.Strategy),
		strings.Join(run.Tickers, ","),
		run.Start.Format(DateLayout),
		run.End.Format(DateLayout),
		run.RiskFreeRate,
		target,
		run.Result.Success,
		run.Result.Message,
		string(resultJSON),
		run.Duration.Milliseconds(),
		run.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// Get returns a run by ID, or nil, nil if it does not exist.
func (r *RunRepository) Get(id string) (*Run, error) {
	row := r.db.QueryRow(`
		SELECT id, session_id, strategy, tickers, start_date, end_date, risk_free_rate,
		       target_return, result_json, duration_ms, created_at
		FROM optimization_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// List returns the most recent runs, newest first.
func (r *RunRepository) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT id, session_id, strategy, tickers, start_date, end_date, risk_free_rate,
		       target_return, result_json, duration_ms, created_at
		FROM optimization_runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		strategy   string
		tickers    string
		start, end string
		target     sql.NullFloat64
		resultJSON string
		durationMS int64
		createdAt  int64
	)
	if err := row.Scan(&run.ID, &run.SessionID, &strategy, &tickers, &start, &end,
		&run.RiskFreeRate, &target, &resultJSON, &durationMS, &createdAt); err != nil {
		return nil, err
	}

	run.Strategy = Strategy(strategy)
	if tickers != "" {
		run.Tickers = strings.Split(tickers, ",")
	}
	run.Start, _ = time.Parse(DateLayout, start)
	run.End, _ = time.Parse(DateLayout, end)
	if target.Valid {
		v := target.Float64
		run.TargetReturn = &v
	}
	if err := json.Unmarshal([]byte(resultJSON), &run.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result of run %s: %w", run.ID, err)
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	run.CreatedAt = time.Unix(createdAt, 0)
	return &run, nil
}
