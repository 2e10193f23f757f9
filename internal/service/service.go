// Package service is the facade the outer layers (CLI, future API)
// call: job lifecycle, iterative projects, and comparisons.
package service

import (
	"context"
	"errors"
	"fmt"

	"prospector/internal/config"
	"prospector/internal/iterate"
	"prospector/internal/logging"
	"prospector/internal/pipeline"
	"prospector/internal/store"
	"prospector/internal/types"
)

// Service wires the store, runner and accumulator together.
type Service struct {
	store  *store.LocalStore
	runner *pipeline.Runner
	cfg    *config.Config
}

// New creates the service and hooks job completion to iteration status
// mirroring.
func New(st *store.LocalStore, runner *pipeline.Runner, cfg *config.Config) *Service {
	s := &Service{store: st, runner: runner, cfg: cfg}
	runner.SetCompletionHook(s.mirrorIterationStatus)
	return s
}

// StartJob creates a pending research job and enqueues it. Returns the
// job id immediately; the caller polls GetJob for progress.
func (s *Service) StartJob(ctx context.Context, clientName, salesHistory, prompt string) (string, error) {
	job, err := s.store.CreateJob(clientName, salesHistory, prompt)
	if err != nil {
		return "", err
	}
	if _, err := s.runner.Start(job.ID, nil); err != nil {
		return "", err
	}
	return job.ID, nil
}

// GetJob returns the job's current snapshot: monotonic status plus
// whatever sub-results have been attached so far.
func (s *Service) GetJob(ctx context.Context, id string) (*types.Job, error) {
	return s.store.GetJob(id)
}

// CreateProject creates an iterative research project.
func (s *Service) CreateProject(ctx context.Context, name, clientName, description string, mode types.ContextMode) (*types.Project, error) {
	return s.store.CreateProject(name, clientName, description, mode)
}

// GetProject returns the project.
func (s *Service) GetProject(ctx context.Context, id string) (*types.Project, error) {
	return s.store.GetProject(id)
}

// ListIterations returns the project's iterations in sequence order.
func (s *Service) ListIterations(ctx context.Context, projectID string) ([]*types.Iteration, error) {
	return s.store.ListIterations(projectID)
}

// IterationRequest carries the caller's inputs for a new iteration.
// All fields are optional.
type IterationRequest struct {
	// SalesHistory and PromptOverride flow into the backing job's
	// research prompt.
	SalesHistory   string
	PromptOverride string

	// Sequence pins the iteration number for idempotent re-invocation;
	// zero allocates the next one. A pinned sequence that already
	// exists returns the existing iteration instead of starting a new
	// run.
	Sequence int
}

// StartIteration allocates the project's next iteration, seeds it with
// inherited context (accumulate mode, sequence > 1), creates the
// backing job and starts it. When the latest iteration is still
// pending or running it is returned instead; no duplicate run starts.
func (s *Service) StartIteration(ctx context.Context, projectID string, req IterationRequest) (*types.Iteration, error) {
	project, err := s.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}

	if req.Sequence > 0 {
		if existing, err := s.store.GetIteration(projectID, req.Sequence); err == nil {
			return s.adoptExisting(projectID, existing)
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	prior, err := s.store.ListIterations(projectID)
	if err != nil {
		return nil, err
	}
	if n := len(prior); n > 0 {
		last := prior[n-1]
		if !last.Status.IsTerminal() {
			return s.adoptExisting(projectID, last)
		}
	}

	seq := req.Sequence
	if seq == 0 {
		seq, err = s.store.NextSequence(projectID)
		if err != nil {
			return nil, err
		}
	}

	var inherited *types.InheritedContext
	if project.ContextMode == types.ContextAccumulate && seq > 1 {
		inherited, err = iterate.Accumulate(project, prior, s.lookups(), s.cfg.Pipeline.ContextCap)
		if err != nil {
			return nil, fmt.Errorf("failed to accumulate context: %w", err)
		}
	}

	job, err := s.store.CreateJob(project.ClientName, req.SalesHistory, req.PromptOverride)
	if err != nil {
		return nil, err
	}

	it := &types.Iteration{
		ProjectID:        projectID,
		Sequence:         seq,
		SalesHistory:     req.SalesHistory,
		PromptOverride:   req.PromptOverride,
		JobID:            job.ID,
		InheritedContext: inherited,
	}
	if err := s.store.CreateIteration(it); err != nil {
		if errors.Is(err, store.ErrSequenceTaken) {
			// a concurrent caller won the sequence; return theirs
			return s.store.GetIteration(projectID, seq)
		}
		return nil, err
	}

	// mark running before the job starts so a fast completion's status
	// mirror is not overwritten afterwards
	if err := s.store.UpdateIterationStatus(it.ID, types.StatusRunning); err != nil {
		logging.IterateDebug("failed to mark iteration %s running: %v", it.ID, err)
	}
	it.Status = types.StatusRunning
	if _, err := s.runner.Start(job.ID, inherited); err != nil {
		return nil, err
	}
	logging.Iterate("StartIteration(%s): started sequence %d (job %s)", projectID, seq, job.ID)
	return it, nil
}

// adoptExisting hands back an already-allocated iteration, re-starting
// its backing job when the iteration has not finished. Start is
// singleflight-guarded, so a job already executing is not duplicated.
func (s *Service) adoptExisting(projectID string, it *types.Iteration) (*types.Iteration, error) {
	if !it.Status.IsTerminal() && it.JobID != "" {
		if _, err := s.runner.Start(it.JobID, it.InheritedContext); err != nil {
			return nil, err
		}
	}
	logging.Iterate("StartIteration(%s): iteration %d already %s, returning existing",
		projectID, it.Sequence, it.Status)
	return it, nil
}

// Compare diffs two completed iterations of a project.
func (s *Service) Compare(ctx context.Context, projectID string, seqA, seqB int) (*iterate.Comparison, error) {
	a, err := s.side(projectID, seqA)
	if err != nil {
		return nil, err
	}
	b, err := s.side(projectID, seqB)
	if err != nil {
		return nil, err
	}
	return iterate.Compare(a, b)
}

func (s *Service) side(projectID string, seq int) (iterate.Side, error) {
	it, err := s.store.GetIteration(projectID, seq)
	if err != nil {
		return iterate.Side{}, fmt.Errorf("iteration %d: %w", seq, err)
	}
	var job *types.Job
	if it.JobID != "" {
		job, err = s.store.GetJob(it.JobID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return iterate.Side{}, err
		}
	}
	return iterate.Side{Iteration: it, Job: job}, nil
}

// lookups adapts the store to the accumulator's read interface.
func (s *Service) lookups() iterate.Lookups {
	return iterate.Lookups{
		JobForIteration: func(it *types.Iteration) (*types.Job, error) {
			if it.JobID == "" {
				return nil, store.ErrNotFound
			}
			return s.store.GetJob(it.JobID)
		},
		StarredProducts: s.store.ListStarredWorkProducts,
		UseCasesForJob:  s.store.ListUseCases,
	}
}

// mirrorIterationStatus reflects a terminal job status onto the
// iteration that owns the job, if any.
func (s *Service) mirrorIterationStatus(job *types.Job) {
	it, err := s.store.GetIterationByJob(job.ID)
	if err != nil {
		return // standalone job, nothing to mirror
	}
	if err := s.store.UpdateIterationStatus(it.ID, job.Status); err != nil {
		logging.IterateDebug("failed to mirror status for iteration %s: %v", it.ID, err)
	}
}

// SaveWorkProduct stores a work product on a project.
func (s *Service) SaveWorkProduct(ctx context.Context, wp *types.WorkProduct) error {
	return s.store.SaveWorkProduct(wp)
}

// StarWorkProduct toggles a work product's starred flag.
func (s *Service) StarWorkProduct(ctx context.Context, id string, starred bool) error {
	return s.store.SetWorkProductStarred(id, starred)
}

// ListWorkProducts lists a project's work products.
func (s *Service) ListWorkProducts(ctx context.Context, projectID string) ([]*types.WorkProduct, error) {
	return s.store.ListWorkProducts(projectID)
}

// Annotate attaches or updates a note on any object.
func (s *Service) Annotate(ctx context.Context, a *types.Annotation) error {
	return s.store.SaveAnnotation(a)
}

// ListAnnotations lists notes for a target.
func (s *Service) ListAnnotations(ctx context.Context, projectID, targetID string) ([]*types.Annotation, error) {
	return s.store.ListAnnotations(projectID, targetID)
}

// AttachUseCase stores a use case against a job.
func (s *Service) AttachUseCase(ctx context.Context, uc *types.UseCase) error {
	return s.store.AttachUseCase(uc)
}
