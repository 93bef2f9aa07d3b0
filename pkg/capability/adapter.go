/*
Package capability implements a mode-gated adapter around heavyweight
external generation tools.

An Adapter probes once whether its full capability (model weights, a
binary, an accelerator) is usable and then serves a small operation
surface — Initialize, Prepare, Generate, Status — in either full or
simulation mode. Full-mode failures are absorbed by a single retry
through the simulation driver rather than surfaced to the caller.
*/
package capability

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Mode is the operating tier selected by the capability probe.
type Mode string

const (
	ModeFull       Mode = "full"
	ModeSimulation Mode = "simulation"
)

// FallbackReason distinguishes why a result came from the simulation
// driver: the full capability was never available, or a full attempt
// errored at runtime.
type FallbackReason string

const (
	FallbackNone        FallbackReason = ""
	FallbackUnavailable FallbackReason = "unavailable"
	FallbackFullError   FallbackReason = "full_error"
)

// PreparedSubject records one registered generation subject. Records are
// replaced wholesale on re-prepare, never mutated in place.
type PreparedSubject struct {
	SubjectID  string    `json:"subject_id"`
	SourcePath string    `json:"source_path"`
	StoredPath string    `json:"stored_path"`
	PreparedAt time.Time `json:"prepared_at"`
	Status     string    `json:"status"`
}

// GenerationInput carries the per-call driver arguments.
type GenerationInput struct {
	AudioPath  string
	OutputPath string
}

// GenerationResult is the tagged outcome of one Generate call. Success is
// false only for precondition violations or when the simulation fallback
// itself failed; "full mode unavailable" alone never fails a call.
type GenerationResult struct {
	Mode           Mode           `json:"mode"`
	Success        bool           `json:"success"`
	OutputPath     string         `json:"output_path,omitempty"`
	Diagnostic     string         `json:"diagnostic,omitempty"`
	FallbackReason FallbackReason `json:"fallback_reason,omitempty"`
}

// FullDriver is the genuine toolkit path. Probe must be bounded and
// side-effect-free. Generate must verify its output artifact exists
// before returning a nil error.
type FullDriver interface {
	Name() string
	Probe() Report
	Generate(ctx context.Context, subject PreparedSubject, input GenerationInput) (string, error)
}

// SimulationDriver produces a best-effort degraded artifact using only
// cheap, always-available operations.
type SimulationDriver interface {
	Name() string
	Generate(ctx context.Context, subject PreparedSubject, input GenerationInput) (string, error)
}

// Status is the pure-read snapshot returned by Adapter.Status.
type Status struct {
	Name             string `json:"name"`
	Initialized      bool   `json:"initialized"`
	Mode             Mode   `json:"mode"`
	Probe            Report `json:"probe"`
	PreparedSubjects int    `json:"prepared_subjects"`
	StorageDir       string `json:"storage_dir"`
}

// Adapter gates access to an external capability behind an instance-scoped
// probe. The probe result is cached; Generate never re-probes, only an
// explicit Initialize refreshes it.
//
// An Adapter is not safe for concurrent use. Callers needing parallelism
// give each worker its own instance or serialize access externally.
type Adapter struct {
	name   string
	logger *zap.Logger
	full   FullDriver
	sim    SimulationDriver

	storageDir  string
	fullTimeout time.Duration
	simTimeout  time.Duration

	initialized bool
	mode        Mode
	probe       Report
	subjects    map[string]PreparedSubject
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithStorageDir overrides where prepared assets are copied.
func WithStorageDir(dir string) Option {
	return func(a *Adapter) {
		a.storageDir = dir
	}
}

// WithFullTimeout bounds a single full-mode generation attempt.
func WithFullTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.fullTimeout = d
	}
}

// WithSimulationTimeout bounds the simulation fallback.
func WithSimulationTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.simTimeout = d
	}
}

// New creates an adapter in the UNINITIALIZED state. The first Prepare or
// Generate call initializes it lazily if Initialize was never called.
func New(name string, full FullDriver, sim SimulationDriver, logger *zap.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		name:        name,
		logger:      logger,
		full:        full,
		sim:         sim,
		storageDir:  filepath.Join(os.TempDir(), "rrfff_"+name),
		fullTimeout: 120 * time.Second,
		simTimeout:  60 * time.Second,
		subjects:    make(map[string]PreparedSubject),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Initialize runs the capability probe and selects the operating mode. It
// never fails: a failed probe downgrades the adapter to simulation mode
// instead of returning an error. Re-running refreshes the probe and may
// change the mode; prepared subjects are left untouched.
func (a *Adapter) Initialize() Mode {
	a.probe = a.full.Probe()
	a.initialized = true

	if a.probe.Available {
		a.mode = ModeFull
		a.logger.Info("capability probe passed",
			zap.String("adapter", a.name),
			zap.String("driver", a.full.Name()))
	} else {
		a.mode = ModeSimulation
		a.logger.Warn("capability unavailable, running in simulation mode",
			zap.String("adapter", a.name),
			zap.String("driver", a.full.Name()),
			zap.Any("failures", a.probe.Failures))
	}

	return a.mode
}

// Mode reports the current operating tier.
func (a *Adapter) Mode() Mode {
	return a.mode
}

// Prepared reports whether a subject has been registered.
func (a *Adapter) Prepared(subjectID string) bool {
	_, ok := a.subjects[subjectID]
	return ok
}

// Prepare copies the source asset into adapter-managed storage and
// registers it under subjectID. Preparing the same subject with the same
// source short-circuits; a different source replaces the record.
func (a *Adapter) Prepare(subjectID, sourcePath string) (*PreparedSubject, error) {
	a.ensureInitialized()

	if subjectID == "" {
		return nil, fmt.Errorf("subject id must not be empty")
	}

	if existing, ok := a.subjects[subjectID]; ok && existing.SourcePath == sourcePath {
		a.logger.Info("subject already prepared",
			zap.String("adapter", a.name),
			zap.String("subject", subjectID))
		return &existing, nil
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("source asset unreadable: %w", err)
	}
	defer src.Close()

	subjectDir := filepath.Join(a.storageDir, "subject_"+subjectID)
	if err := os.MkdirAll(subjectDir, 0755); err != nil {
		return nil, fmt.Errorf("create subject storage: %w", err)
	}

	storedPath := filepath.Join(subjectDir, "source"+filepath.Ext(sourcePath))
	dst, err := os.Create(storedPath)
	if err != nil {
		return nil, fmt.Errorf("create stored asset: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return nil, fmt.Errorf("copy asset into storage: %w", err)
	}

	record := PreparedSubject{
		SubjectID:  subjectID,
		SourcePath: sourcePath,
		StoredPath: storedPath,
		PreparedAt: time.Now(),
		Status:     "ready",
	}
	a.subjects[subjectID] = record

	a.logger.Info("subject prepared",
		zap.String("adapter", a.name),
		zap.String("subject", subjectID),
		zap.String("stored", storedPath))

	return &record, nil
}

// Generate produces an artifact for a prepared subject. A result is always
// returned. In full mode a failed or timed-out attempt is retried exactly
// once through the simulation driver and the result is tagged accordingly.
// An unprepared subject fails fast without touching either driver.
func (a *Adapter) Generate(ctx context.Context, subjectID string, input GenerationInput) *GenerationResult {
	a.ensureInitialized()

	subject, ok := a.subjects[subjectID]
	if !ok {
		a.logger.Error("subject not prepared",
			zap.String("adapter", a.name),
			zap.String("subject", subjectID))
		return &GenerationResult{
			Mode:       a.mode,
			Success:    false,
			Diagnostic: fmt.Sprintf("subject not prepared: %s", subjectID),
		}
	}

	if a.mode == ModeFull {
		fullCtx, cancel := context.WithTimeout(ctx, a.fullTimeout)
		output, err := a.full.Generate(fullCtx, subject, input)
		cancel()

		if err == nil {
			a.logger.Info("full-mode generation completed",
				zap.String("adapter", a.name),
				zap.String("subject", subjectID),
				zap.String("output", output))
			return &GenerationResult{
				Mode:       ModeFull,
				Success:    true,
				OutputPath: output,
			}
		}

		a.logger.Warn("full-mode generation failed, retrying in simulation mode",
			zap.String("adapter", a.name),
			zap.String("subject", subjectID),
			zap.Error(err))
		return a.simulate(ctx, subject, input, FallbackFullError, err.Error())
	}

	return a.simulate(ctx, subject, input, FallbackUnavailable, "")
}

func (a *Adapter) simulate(ctx context.Context, subject PreparedSubject, input GenerationInput, reason FallbackReason, diagnostic string) *GenerationResult {
	simCtx, cancel := context.WithTimeout(ctx, a.simTimeout)
	defer cancel()

	output, err := a.sim.Generate(simCtx, subject, input)
	if err != nil {
		a.logger.Error("simulation generation failed",
			zap.String("adapter", a.name),
			zap.String("subject", subject.SubjectID),
			zap.Error(err))
		return &GenerationResult{
			Mode:           ModeSimulation,
			Success:        false,
			Diagnostic:     fmt.Sprintf("simulation fallback failed: %v", err),
			FallbackReason: reason,
		}
	}

	a.logger.Info("simulation generation completed",
		zap.String("adapter", a.name),
		zap.String("subject", subject.SubjectID),
		zap.String("output", output))

	return &GenerationResult{
		Mode:           ModeSimulation,
		Success:        true,
		OutputPath:     output,
		Diagnostic:     diagnostic,
		FallbackReason: reason,
	}
}

// Status reports the adapter state. Pure read: it never initializes, never
// re-probes.
func (a *Adapter) Status() Status {
	return Status{
		Name:             a.name,
		Initialized:      a.initialized,
		Mode:             a.mode,
		Probe:            a.probe,
		PreparedSubjects: len(a.subjects),
		StorageDir:       a.storageDir,
	}
}

// Cleanup removes adapter-managed storage and forgets prepared subjects.
// The adapter can be re-used afterwards but subjects must be re-prepared.
func (a *Adapter) Cleanup() error {
	if err := os.RemoveAll(a.storageDir); err != nil {
		return fmt.Errorf("remove adapter storage: %w", err)
	}
	a.subjects = make(map[string]PreparedSubject)
	a.logger.Info("adapter storage cleaned up", zap.String("adapter", a.name))
	return nil
}

func (a *Adapter) ensureInitialized() {
	if !a.initialized {
		a.Initialize()
	}
}
