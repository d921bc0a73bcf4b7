package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/sublym/backend/internal/logging"
	"github.com/sublym/backend/internal/models"
	"github.com/sublym/backend/internal/repositories"
)

// RunUpdater persists status transitions for generation runs. Writes against
// a run that already reached a terminal status must be rejected with
// repositories.ErrNotFound, which is how a user cancel stops an in-flight
// job. Any other error is an infrastructure failure and ends the run as
// failed instead of abandoning it.
type RunUpdater interface {
	UpdateProgress(ctx context.Context, traceID, status string, progress int, currentStep string) error
	MarkCompleted(ctx context.Context, traceID, videoURL, teaserURL string, keyframesURLs []string) error
	MarkFailed(ctx context.Context, traceID, message string) error
}

// DreamCompleter links a finished run back to its dream.
type DreamCompleter interface {
	MarkCompleted(ctx context.Context, dreamID, runID string) error
}

// AssetStorage persists rendered media and returns a public location.
type AssetStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// EngineConfig controls the concurrency characteristics of the engine.
type EngineConfig struct {
	QueueSize     int
	Workers       int
	SceneCount    int
	SceneDuration time.Duration
	StepTimeout   time.Duration
}

// Engine renders dream videos in the background. Jobs move through a fixed
// step sequence, persisting progress after each step so clients can poll.
type Engine struct {
	renderer Renderer
	storage  AssetStorage
	runs     RunUpdater
	dreams   DreamCompleter
	logger   *slog.Logger
	cfg      EngineConfig

	jobs   chan generationJob
	quit   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

type generationJob struct {
	run   models.GenerationRun
	dream models.Dream
}

var errEngineClosed = errors.New("pipeline engine closed")

// NewEngine constructs a background worker pool that renders dreams.
func NewEngine(renderer Renderer, storage AssetStorage, runs RunUpdater, dreams DreamCompleter, cfg EngineConfig, logger *slog.Logger) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.SceneCount <= 0 {
		cfg.SceneCount = 3
	}
	if cfg.SceneDuration <= 0 {
		cfg.SceneDuration = 6 * time.Second
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	eng := &Engine{
		renderer: renderer,
		storage:  storage,
		runs:     runs,
		dreams:   dreams,
		logger:   logger,
		cfg:      cfg,
		jobs:     make(chan generationJob, cfg.QueueSize),
		quit:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	eng.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go eng.worker()
	}

	return eng
}

// Enqueue schedules a generation run for background rendering.
func (e *Engine) Enqueue(ctx context.Context, run models.GenerationRun, dream models.Dream) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.quit:
		return errEngineClosed
	default:
	}

	job := generationJob{run: run, dream: dream}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.quit:
		return errEngineClosed
	case e.jobs <- job:
		return nil
	}
}

// Shutdown stops intake and waits for the workers to finish every job still
// queued. A run dropped here would stay in a non-terminal status forever, so
// queued work is always drained; only once ctx expires are in-flight renders
// aborted, and an aborted render is recorded as failed, not dropped.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.once.Do(func() {
		close(e.quit)
	})

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		e.cancel()
		return ctx.Err()
	case <-done:
		e.cancel()
		return nil
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()

	for {
		select {
		case job := <-e.jobs:
			e.handleJob(job)
		case <-e.quit:
			// Intake is closed; finish whatever is still queued before
			// exiting so no run is left stuck in a non-terminal status.
			for {
				select {
				case job := <-e.jobs:
					e.handleJob(job)
				default:
					return
				}
			}
		}
	}
}

func (e *Engine) handleJob(job generationJob) {
	if e.renderer == nil || e.storage == nil || e.runs == nil {
		e.logger.Error("pipeline engine missing dependencies", "hasRenderer", e.renderer != nil, "hasStorage", e.storage != nil, "hasRuns", e.runs != nil)
		return
	}

	ctx := logging.WithLogger(e.ctx, e.logger.With("traceId", job.run.TraceID, "dreamId", job.dream.ID))
	ctx = logging.WithTraceID(ctx, job.run.TraceID)
	ctx, cancel := context.WithTimeout(ctx, e.stepBudget())
	defer cancel()

	if err := e.render(ctx, job); err != nil {
		if errors.Is(err, errRunInactive) {
			e.logger.Info("run no longer active, abandoning render", "traceId", job.run.TraceID)
			return
		}
		e.logger.Error("dream render failed", "traceId", job.run.TraceID, "error", err)
		e.recordFailure(job.run.TraceID, err)
	}
}

// errRunInactive signals that a progress write was rejected because the run
// already reached a terminal status, typically after a user cancel.
var errRunInactive = errors.New("run is no longer active")

func (e *Engine) render(ctx context.Context, job generationJob) error {
	if err := e.advance(ctx, job.run.TraceID, 5, "Preparing plan"); err != nil {
		return err
	}

	spanCtx, span := logging.StartSpan(ctx, "plan_scenes")
	scenes, err := e.renderer.PlanScenes(spanCtx, job.dream, e.cfg.SceneCount, e.cfg.SceneDuration)
	span.End()
	if err != nil {
		return fmt.Errorf("plan scenes: %w", err)
	}
	if err := e.advance(ctx, job.run.TraceID, 15, "Planning scenes"); err != nil {
		return err
	}

	keyframeURLs := make([]string, 0, len(scenes))
	keyframes := make([][]byte, 0, len(scenes))
	for _, scene := range scenes {
		spanCtx, span := logging.StartSpan(ctx, "render_keyframe")
		frame, err := e.renderer.RenderKeyframe(spanCtx, scene)
		span.End()
		if err != nil {
			return fmt.Errorf("render keyframe %d: %w", scene.Index, err)
		}

		location, err := e.store(ctx, job.run.TraceID, fmt.Sprintf("keyframe_%02d.png", scene.Index), frame)
		if err != nil {
			return err
		}
		keyframes = append(keyframes, frame)
		keyframeURLs = append(keyframeURLs, location)
	}
	if err := e.advance(ctx, job.run.TraceID, 40, "Generating keyframes"); err != nil {
		return err
	}

	videos := make([][]byte, 0, len(scenes))
	for idx, scene := range scenes {
		spanCtx, span := logging.StartSpan(ctx, "render_scene_video")
		clip, err := e.renderer.RenderSceneVideo(spanCtx, scene, keyframes[idx])
		span.End()
		if err != nil {
			return fmt.Errorf("render scene video %d: %w", scene.Index, err)
		}
		videos = append(videos, clip)
	}
	if err := e.advance(ctx, job.run.TraceID, 70, "Generating videos"); err != nil {
		return err
	}

	spanCtx, span = logging.StartSpan(ctx, "assemble_montage")
	montage, err := e.renderer.AssembleMontage(spanCtx, scenes, videos)
	span.End()
	if err != nil {
		return fmt.Errorf("assemble montage: %w", err)
	}
	if err := e.advance(ctx, job.run.TraceID, 90, "Assembling final"); err != nil {
		return err
	}

	videoURL, err := e.store(ctx, job.run.TraceID, "final.mp4", montage.Video)
	if err != nil {
		return err
	}
	teaserURL, err := e.store(ctx, job.run.TraceID, "teaser.mp4", montage.Teaser)
	if err != nil {
		return err
	}
	if err := e.advance(ctx, job.run.TraceID, 98, "Finalizing"); err != nil {
		return err
	}

	if err := e.runs.MarkCompleted(ctx, job.run.TraceID, videoURL, teaserURL, keyframeURLs); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return errRunInactive
		}
		return fmt.Errorf("mark run completed: %w", err)
	}

	if e.dreams != nil {
		if err := e.dreams.MarkCompleted(ctx, job.dream.ID, job.run.TraceID); err != nil {
			e.logger.Error("mark dream completed", "dreamId", job.dream.ID, "error", err)
		}
	}

	return nil
}

// advance persists a progress transition. A rejected write means the run was
// cancelled or otherwise finished, so the render stops quietly; any other
// error bubbles up and the run is marked failed.
func (e *Engine) advance(ctx context.Context, traceID string, progress int, step string) error {
	if err := e.runs.UpdateProgress(ctx, traceID, models.RunStatusProcessing, progress, step); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return errRunInactive
		}
		return fmt.Errorf("update progress at %q: %w", step, err)
	}
	return nil
}

func (e *Engine) store(ctx context.Context, traceID, name string, content []byte) (string, error) {
	key := path.Join("runs", traceID, name)
	location, err := e.storage.Save(ctx, key, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("store %s: %w", name, err)
	}
	return location, nil
}

func (e *Engine) recordFailure(traceID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.runs.MarkFailed(ctx, traceID, cause.Error()); err != nil {
		e.logger.Error("record run failure", "traceId", traceID, "error", err)
	}
}

func (e *Engine) stepBudget() time.Duration {
	// Scenes render sequentially, so the whole job shares one deadline
	// proportional to the scene count.
	budget := e.cfg.StepTimeout * time.Duration(e.cfg.SceneCount+2)
	if budget < 2*time.Minute {
		budget = 2 * time.Minute
	}
	return budget
}
