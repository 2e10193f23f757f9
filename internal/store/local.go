// Package store persists jobs, projects, iterations, work products,
// annotations and use cases in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"prospector/internal/logging"
	"prospector/internal/types"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = fmt.Errorf("record not found")

// ErrInvalidTransition is returned when a status update would regress a
// job or leave a terminal state.
var ErrInvalidTransition = fmt.Errorf("invalid status transition")

// ErrSequenceTaken is returned when an iteration sequence number is
// already allocated for the project.
var ErrSequenceTaken = fmt.Errorf("iteration sequence already exists")

// LocalStore is the SQLite persistence layer. A single connection with
// a mutex keeps writes serialized, matching modernc's single-writer
// model.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore initializes the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("Initializing LocalStore at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &LocalStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.StoreDebug("Database schema initialized")

	return s, nil
}

// initialize creates the required tables.
func (s *LocalStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		client_name TEXT NOT NULL,
		sales_history TEXT,
		prompt TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		vertical TEXT,
		error TEXT,
		warnings TEXT,
		report TEXT,
		case_studies TEXT,
		gap_analysis TEXT,
		internal_ops TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		client_name TEXT NOT NULL,
		description TEXT,
		context_mode TEXT NOT NULL DEFAULT 'accumulate',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS iterations (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		name TEXT,
		sales_history TEXT,
		prompt_override TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		job_id TEXT,
		inherited_context TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (project_id) REFERENCES projects(id)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_iterations_project_seq
		ON iterations(project_id, sequence);

	CREATE TABLE IF NOT EXISTS work_products (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		source_sequence INTEGER,
		category TEXT NOT NULL,
		title TEXT NOT NULL,
		summary TEXT,
		starred INTEGER NOT NULL DEFAULT 0,
		notes TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_work_products_project
		ON work_products(project_id);

	CREATE TABLE IF NOT EXISTS annotations (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS use_cases (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		business_problem TEXT,
		priority TEXT NOT NULL DEFAULT 'medium',
		impact_score REAL,
		feasibility_score REAL
	);
	CREATE INDEX IF NOT EXISTS idx_use_cases_job ON use_cases(job_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// =============================================================================
// JOBS
// =============================================================================

// CreateJob inserts a new pending job and returns it with id and
// timestamps populated.
func (s *LocalStore) CreateJob(clientName, salesHistory, prompt string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &types.Job{
		ID:           uuid.NewString(),
		ClientName:   clientName,
		SalesHistory: salesHistory,
		Prompt:       prompt,
		Status:       types.StatusPending,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO jobs (id, client_name, sales_history, prompt, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ClientName, job.SalesHistory, job.Prompt, string(job.Status),
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	logging.Store("Created job %s for client %q", job.ID, clientName)
	return job, nil
}

// GetJob returns the job with all attached sub-results.
func (s *LocalStore) GetJob(id string) (*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getJobLocked(id)
}

func (s *LocalStore) getJobLocked(id string) (*types.Job, error) {
	row := s.db.QueryRow(
		`SELECT id, client_name, sales_history, prompt, status, vertical, error,
		        warnings, report, case_studies, gap_analysis, internal_ops,
		        created_at, updated_at
		 FROM jobs WHERE id = ?`, id,
	)

	var job types.Job
	var status string
	var vertical, jobErr, warnings, report, caseStudies, gapAnalysis, internalOps sql.NullString
	err := row.Scan(&job.ID, &job.ClientName, &job.SalesHistory, &job.Prompt,
		&status, &vertical, &jobErr, &warnings, &report, &caseStudies,
		&gapAnalysis, &internalOps, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	job.Status = types.JobStatus(status)
	job.Vertical = types.Vertical(vertical.String)
	job.Error = jobErr.String
	unmarshalColumn(id, "warnings", warnings, &job.Warnings)
	if report.Valid && report.String != "" {
		job.Report = &types.Report{}
		unmarshalColumn(id, "report", report, job.Report)
	}
	unmarshalColumn(id, "case_studies", caseStudies, &job.CaseStudies)
	if gapAnalysis.Valid && gapAnalysis.String != "" {
		job.GapAnalysis = &types.GapAnalysis{}
		unmarshalColumn(id, "gap_analysis", gapAnalysis, job.GapAnalysis)
	}
	if internalOps.Valid && internalOps.String != "" {
		job.InternalOps = &types.InternalOpsIntel{}
		unmarshalColumn(id, "internal_ops", internalOps, job.InternalOps)
	}
	return &job, nil
}

// unmarshalColumn decodes a JSON sub-result column. A corrupted column
// leaves the field empty but is logged; losing it silently would make
// the half-empty job look legitimate.
func unmarshalColumn(jobID, column string, raw sql.NullString, dest interface{}) {
	if !raw.Valid || raw.String == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw.String), dest); err != nil {
		logging.StoreError("job %s: corrupted %s column: %v", jobID, column, err)
	}
}

// UpdateJobStatus advances the job's status, enforcing the monotonic
// transition rules. The optional message lands in the error column for
// failed and is ignored otherwise.
func (s *LocalStore) UpdateJobStatus(id string, next types.JobStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.getJobLocked(id)
	if err != nil {
		return err
	}
	if !job.Status.CanTransitionTo(next) {
		return fmt.Errorf("job %s: %s -> %s: %w", id, job.Status, next, ErrInvalidTransition)
	}

	if next == types.StatusFailed {
		_, err = s.db.Exec(
			"UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?",
			string(next), message, time.Now().UTC(), id,
		)
	} else {
		_, err = s.db.Exec(
			"UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?",
			string(next), time.Now().UTC(), id,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	logging.Store("Job %s: %s -> %s", id, job.Status, next)
	return nil
}

// SetJobVertical records the classified vertical.
func (s *LocalStore) SetJobVertical(id string, v types.Vertical) error {
	return s.updateJobColumn(id, "vertical", string(v))
}

// SetJobWarnings replaces the job's warning list.
func (s *LocalStore) SetJobWarnings(id string, warnings []string) error {
	data, err := json.Marshal(warnings)
	if err != nil {
		return err
	}
	return s.updateJobColumn(id, "warnings", string(data))
}

// AttachReport stores the deep research report on the job.
func (s *LocalStore) AttachReport(id string, r *types.Report) error {
	return s.attachJSON(id, "report", r)
}

// AttachCaseStudies stores the competitor case studies on the job.
func (s *LocalStore) AttachCaseStudies(id string, cs []types.CompetitorCaseStudy) error {
	return s.attachJSON(id, "case_studies", cs)
}

// AttachGapAnalysis stores the gap analysis on the job.
func (s *LocalStore) AttachGapAnalysis(id string, g *types.GapAnalysis) error {
	return s.attachJSON(id, "gap_analysis", g)
}

// AttachInternalOps stores the internal ops intelligence on the job.
func (s *LocalStore) AttachInternalOps(id string, intel *types.InternalOpsIntel) error {
	return s.attachJSON(id, "internal_ops", intel)
}

func (s *LocalStore) attachJSON(id, column string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", column, err)
	}
	return s.updateJobColumn(id, column, string(data))
}

func (s *LocalStore) updateJobColumn(id, column, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// column names come from a fixed internal set, never user input
	res, err := s.db.Exec(
		fmt.Sprintf("UPDATE jobs SET %s = ?, updated_at = ? WHERE id = ?", column),
		value, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// =============================================================================
// PROJECTS & ITERATIONS
// =============================================================================

// CreateProject inserts a new project.
func (s *LocalStore) CreateProject(name, clientName, description string, mode types.ContextMode) (*types.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == "" {
		mode = types.ContextAccumulate
	}
	p := &types.Project{
		ID:          uuid.NewString(),
		Name:        name,
		ClientName:  clientName,
		Description: description,
		ContextMode: mode,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO projects (id, name, client_name, description, context_mode, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.ClientName, p.Description, string(p.ContextMode),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	logging.Store("Created project %s (%s)", p.ID, name)
	return p, nil
}

// GetProject returns the project.
func (s *LocalStore) GetProject(id string) (*types.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, name, client_name, description, context_mode, created_at, updated_at
		 FROM projects WHERE id = ?`, id,
	)
	var p types.Project
	var mode string
	var desc sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.ClientName, &desc, &mode, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	p.Description = desc.String
	p.ContextMode = types.ContextMode(mode)
	return &p, nil
}

// NextSequence returns the next unallocated iteration sequence for the
// project, starting at 1.
func (s *LocalStore) NextSequence(projectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max sql.NullInt64
	err := s.db.QueryRow(
		"SELECT MAX(sequence) FROM iterations WHERE project_id = ?", projectID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query sequence: %w", err)
	}
	return int(max.Int64) + 1, nil
}

// CreateIteration inserts an iteration. The UNIQUE(project_id, sequence)
// index rejects duplicate sequence allocation.
func (s *LocalStore) CreateIteration(it *types.Iteration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.Status == "" {
		it.Status = types.StatusPending
	}
	it.CreatedAt = time.Now().UTC()

	var ctxJSON sql.NullString
	if !it.InheritedContext.IsEmpty() {
		data, err := json.Marshal(it.InheritedContext)
		if err != nil {
			return fmt.Errorf("failed to serialize inherited context: %w", err)
		}
		ctxJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO iterations (id, project_id, sequence, name, sales_history,
		        prompt_override, status, job_id, inherited_context, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.ProjectID, it.Sequence, it.Name, it.SalesHistory,
		it.PromptOverride, string(it.Status), it.JobID, ctxJSON, it.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("project %s sequence %d: %w", it.ProjectID, it.Sequence, ErrSequenceTaken)
		}
		return fmt.Errorf("failed to create iteration: %w", err)
	}
	logging.Store("Created iteration %s (project=%s seq=%d)", it.ID, it.ProjectID, it.Sequence)
	return nil
}

// GetIteration returns the iteration by project and sequence.
func (s *LocalStore) GetIteration(projectID string, sequence int) (*types.Iteration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, project_id, sequence, name, sales_history, prompt_override,
		        status, job_id, inherited_context, created_at
		 FROM iterations WHERE project_id = ? AND sequence = ?`,
		projectID, sequence,
	)
	return scanIteration(row)
}

// GetIterationByJob returns the iteration backed by the given job.
func (s *LocalStore) GetIterationByJob(jobID string) (*types.Iteration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, project_id, sequence, name, sales_history, prompt_override,
		        status, job_id, inherited_context, created_at
		 FROM iterations WHERE job_id = ?`,
		jobID,
	)
	return scanIteration(row)
}

// ListIterations returns the project's iterations ordered by sequence.
func (s *LocalStore) ListIterations(projectID string) ([]*types.Iteration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, project_id, sequence, name, sales_history, prompt_override,
		        status, job_id, inherited_context, created_at
		 FROM iterations WHERE project_id = ? ORDER BY sequence ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list iterations: %w", err)
	}
	defer rows.Close()

	var out []*types.Iteration
	for rows.Next() {
		it, err := scanIteration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateIterationStatus mirrors the linked job's status onto the
// iteration row.
func (s *LocalStore) UpdateIterationStatus(id string, status types.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"UPDATE iterations SET status = ? WHERE id = ?", string(status), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update iteration status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("iteration %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIteration(row rowScanner) (*types.Iteration, error) {
	var it types.Iteration
	var status string
	var name, salesHistory, promptOverride, jobID, ctxJSON sql.NullString
	err := row.Scan(&it.ID, &it.ProjectID, &it.Sequence, &name, &salesHistory,
		&promptOverride, &status, &jobID, &ctxJSON, &it.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan iteration: %w", err)
	}
	it.Name = name.String
	it.SalesHistory = salesHistory.String
	it.PromptOverride = promptOverride.String
	it.Status = types.JobStatus(status)
	it.JobID = jobID.String
	if ctxJSON.Valid && ctxJSON.String != "" {
		it.InheritedContext = &types.InheritedContext{}
		if err := json.Unmarshal([]byte(ctxJSON.String), it.InheritedContext); err != nil {
			logging.StoreError("iteration %s: corrupted inherited_context column: %v", it.ID, err)
		}
	}
	return &it, nil
}

// isUniqueViolation detects a UNIQUE constraint failure without
// depending on driver-specific error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}

// =============================================================================
// WORK PRODUCTS, ANNOTATIONS, USE CASES
// =============================================================================

// SaveWorkProduct inserts a work product (id assigned when empty).
func (s *LocalStore) SaveWorkProduct(wp *types.WorkProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if wp.ID == "" {
		wp.ID = uuid.NewString()
	}
	wp.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO work_products (id, project_id, source_sequence, category,
		        title, summary, starred, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wp.ID, wp.ProjectID, wp.SourceSequence, string(wp.Category),
		wp.Title, wp.Summary, boolToInt(wp.Starred), wp.Notes, wp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save work product: %w", err)
	}
	return nil
}

// SetWorkProductStarred toggles the starred flag.
func (s *LocalStore) SetWorkProductStarred(id string, starred bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"UPDATE work_products SET starred = ? WHERE id = ?", boolToInt(starred), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update work product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("work product %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListStarredWorkProducts returns the project's starred products in
// creation order.
func (s *LocalStore) ListStarredWorkProducts(projectID string) ([]*types.WorkProduct, error) {
	return s.listWorkProducts(projectID, true)
}

// ListWorkProducts returns all of the project's work products in
// creation order.
func (s *LocalStore) ListWorkProducts(projectID string) ([]*types.WorkProduct, error) {
	return s.listWorkProducts(projectID, false)
}

func (s *LocalStore) listWorkProducts(projectID string, starredOnly bool) ([]*types.WorkProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT id, project_id, source_sequence, category, title, summary,
	             starred, notes, created_at
	      FROM work_products WHERE project_id = ?`
	if starredOnly {
		q += " AND starred = 1"
	}
	q += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.Query(q, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list work products: %w", err)
	}
	defer rows.Close()

	var out []*types.WorkProduct
	for rows.Next() {
		var wp types.WorkProduct
		var category string
		var summary, notes sql.NullString
		var starred int
		if err := rows.Scan(&wp.ID, &wp.ProjectID, &wp.SourceSequence,
			&category, &wp.Title, &summary, &starred, &notes, &wp.CreatedAt); err != nil {
			return nil, err
		}
		wp.Category = types.WorkProductCategory(category)
		wp.Summary = summary.String
		wp.Notes = notes.String
		wp.Starred = starred != 0
		out = append(out, &wp)
	}
	return out, rows.Err()
}

// SaveAnnotation inserts or updates an annotation.
func (s *LocalStore) SaveAnnotation(a *types.Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := s.db.Exec(
		`INSERT INTO annotations (id, project_id, target_id, text, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET text = excluded.text, updated_at = excluded.updated_at`,
		a.ID, a.ProjectID, a.TargetID, a.Text, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save annotation: %w", err)
	}
	return nil
}

// ListAnnotations returns the annotations attached to a target.
func (s *LocalStore) ListAnnotations(projectID, targetID string) ([]*types.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, project_id, target_id, text, created_at, updated_at
		 FROM annotations WHERE project_id = ? AND target_id = ?
		 ORDER BY created_at ASC`,
		projectID, targetID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}
	defer rows.Close()

	var out []*types.Annotation
	for rows.Next() {
		var a types.Annotation
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.TargetID, &a.Text,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// DeleteAnnotation removes an annotation.
func (s *LocalStore) DeleteAnnotation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM annotations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete annotation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("annotation %s: %w", id, ErrNotFound)
	}
	return nil
}

// AttachUseCase stores a use case against a job.
func (s *LocalStore) AttachUseCase(uc *types.UseCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uc.ID == "" {
		uc.ID = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO use_cases (id, job_id, title, description, business_problem,
		        priority, impact_score, feasibility_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uc.ID, uc.JobID, uc.Title, uc.Description, uc.BusinessProblem,
		string(uc.Priority), uc.ImpactScore, uc.FeasibilityScore,
	)
	if err != nil {
		return fmt.Errorf("failed to attach use case: %w", err)
	}
	return nil
}

// ListUseCases returns the use cases attached to a job in insertion
// order.
func (s *LocalStore) ListUseCases(jobID string) ([]*types.UseCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, job_id, title, description, business_problem, priority,
		        impact_score, feasibility_score
		 FROM use_cases WHERE job_id = ? ORDER BY rowid ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list use cases: %w", err)
	}
	defer rows.Close()

	var out []*types.UseCase
	for rows.Next() {
		var uc types.UseCase
		var desc, problem sql.NullString
		var priority string
		if err := rows.Scan(&uc.ID, &uc.JobID, &uc.Title, &desc, &problem,
			&priority, &uc.ImpactScore, &uc.FeasibilityScore); err != nil {
			return nil, err
		}
		uc.Description = desc.String
		uc.BusinessProblem = problem.String
		uc.Priority = types.UseCasePriority(priority)
		out = append(out, &uc)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
