package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fusionn-srt/internal/config"
	"github.com/fusionn-srt/internal/fileops"
	"github.com/fusionn-srt/internal/subtitle"
	"github.com/fusionn-srt/pkg/logger"
)

// Outcome is what a successful Process run produced.
type Outcome struct {
	ResultPath    string
	Adapter       string
	CueCount      int
	AudioDuration time.Duration
}

// Processor is the interface that processes a job. It receives a snapshot and
// must not assume the job is still registered when it returns.
type Processor interface {
	Process(ctx context.Context, job Job) (Outcome, error)
}

// Settings are the queue's limits and defaults.
type Settings struct {
	MaxBytes        int64
	AllowedExts     []string
	DataDir         string
	DefaultMaxWords int
	MaxWordsLimit   int
	SplitOnSegments bool
	JobTimeout      time.Duration
	Retention       time.Duration
	SweepInterval   time.Duration
	MaxConcurrent   int
}

// SettingsFromConfig maps the service config onto queue settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MaxBytes:        cfg.Upload.MaxBytes(),
		AllowedExts:     cfg.Upload.AllowedExts,
		DataDir:         cfg.Upload.DataDir,
		DefaultMaxWords: cfg.Subtitle.DefaultMaxWords,
		MaxWordsLimit:   cfg.Subtitle.MaxWordsLimit,
		SplitOnSegments: cfg.Subtitle.SplitOnSegments,
		JobTimeout:      cfg.Jobs.Timeout,
		Retention:       cfg.Jobs.Retention,
		SweepInterval:   cfg.Jobs.SweepInterval,
		MaxConcurrent:   cfg.Jobs.MaxConcurrent,
	}
}

// Upload is an incoming file.
type Upload struct {
	FileName string
	Size     int64 // Declared size; negative when unknown
	Body     io.Reader
}

// SubmitOptions are the per-request parameters. Zero values take defaults.
type SubmitOptions struct {
	MaxWords int
}

// Queue accepts uploads, runs one background task per job and answers
// status and result queries from the store.
type Queue struct {
	store     *Store
	processor Processor

	mu       sync.RWMutex
	settings Settings
	stopped  bool
	onFinish []func(Job)

	slots  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sweeps sync.WaitGroup
}

// New creates a new job queue.
func New(store *Store, processor Processor, settings Settings) *Queue {
	if settings.MaxConcurrent < 1 {
		settings.MaxConcurrent = 1
	}
	if settings.MaxWordsLimit < 1 {
		settings.MaxWordsLimit = subtitle.MaxWordsLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		store:     store,
		processor: processor,
		settings:  settings,
		slots:     make(chan struct{}, settings.MaxConcurrent),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the periodic cleanup sweep.
func (q *Queue) Start() {
	s := q.currentSettings()
	if s.SweepInterval <= 0 {
		logger.Info("📥 Job queue started (sweeper disabled)")
		return
	}

	q.sweeps.Add(1)
	go q.sweeper(s.SweepInterval)
	logger.Infof("📥 Job queue started (max %d concurrent, retention %v)", s.MaxConcurrent, s.Retention)
}

// Stop rejects new submissions, interrupts running jobs and waits for every
// job to reach a terminal state.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	logger.Info("🛑 Stopping job queue...")
	q.cancel()
	q.wg.Wait()
	q.sweeps.Wait()
	logger.Info("✅ Job queue stopped")
}

// Reload applies changed defaults. Jobs already accepted keep their snapshot.
func (q *Queue) Reload(s Settings) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.settings.MaxBytes = s.MaxBytes
	q.settings.AllowedExts = s.AllowedExts
	q.settings.DefaultMaxWords = s.DefaultMaxWords
	q.settings.MaxWordsLimit = s.MaxWordsLimit
	q.settings.SplitOnSegments = s.SplitOnSegments
	q.settings.JobTimeout = s.JobTimeout
	q.settings.Retention = s.Retention
}

// OnFinish registers a callback run after every terminal transition.
func (q *Queue) OnFinish(fn func(Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFinish = append(q.onFinish, fn)
}

func (q *Queue) currentSettings() Settings {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.settings
}

// Limits returns the current upload ceiling and accepted extensions.
func (q *Queue) Limits() (int64, []string) {
	s := q.currentSettings()
	return s.MaxBytes, s.AllowedExts
}

// Submit validates and stores the upload, registers a queued job and starts
// its background task. It never waits for transcription.
func (q *Queue) Submit(up Upload, opts SubmitOptions) (Job, error) {
	s := q.currentSettings()

	if up.Body == nil || strings.TrimSpace(up.FileName) == "" {
		return Job{}, validationError(ErrMissingFile, "no file provided")
	}
	if !fileops.IsAllowedExt(up.FileName, s.AllowedExts) {
		return Job{}, validationError(ErrUnsupportedFormat, "only %s files are supported", strings.Join(s.AllowedExts, ", "))
	}
	if up.Size > s.MaxBytes {
		return Job{}, validationError(ErrFileTooLarge, "file size exceeds %dMB limit", s.MaxBytes/(1024*1024))
	}

	id := uuid.NewString()
	name := fileops.SanitizeName(up.FileName)
	workDir := filepath.Join(s.DataDir, id)
	sourcePath := filepath.Join(workDir, name)

	size, err := fileops.SaveLimited(sourcePath, up.Body, s.MaxBytes)
	if err != nil {
		_ = fileops.RemoveAll(workDir)
		if errors.Is(err, fileops.ErrTooLarge) {
			return Job{}, validationError(ErrFileTooLarge, "file size exceeds %dMB limit", s.MaxBytes/(1024*1024))
		}
		return Job{}, fmt.Errorf("save upload: %w", err)
	}
	if size == 0 {
		_ = fileops.RemoveAll(workDir)
		return Job{}, validationError(ErrMissingFile, "uploaded file is empty")
	}

	options := Options{
		MaxWords:        subtitle.ClampMaxWords(opts.MaxWords, s.MaxWordsLimit),
		MaxWordsLimit:   s.MaxWordsLimit,
		SplitOnSegments: s.SplitOnSegments,
	}
	if opts.MaxWords < 1 {
		options.MaxWords = subtitle.ClampMaxWords(s.DefaultMaxWords, s.MaxWordsLimit)
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		_ = fileops.RemoveAll(workDir)
		return Job{}, ErrShuttingDown
	}
	job, err := q.store.Create(Job{
		ID:         id,
		FileName:   name,
		FileSize:   size,
		Options:    options,
		WorkDir:    workDir,
		SourcePath: sourcePath,
	})
	if err != nil {
		q.mu.Unlock()
		_ = fileops.RemoveAll(workDir)
		return Job{}, fmt.Errorf("register job: %w", err)
	}
	q.wg.Add(1)
	q.mu.Unlock()

	go q.run(job, s.JobTimeout)

	logger.Infof("📥 Job queued: %s (%s, %.2f MB, max %d words)", job.ID, job.FileName, float64(size)/1024/1024, options.MaxWords)
	return job, nil
}

// Status returns a snapshot of the job.
func (q *Queue) Status(id string) (Job, error) {
	if err := q.expireOnAccess(id); err != nil {
		return Job{}, err
	}
	return q.store.Get(id)
}

// Result opens the subtitle file of a completed job. It returns ErrNotReady
// while the job runs, *JobFailedError when it failed and ErrNotFound for
// unknown or expired ids. The caller closes the file.
func (q *Queue) Result(id string) (*os.File, Job, error) {
	if err := q.expireOnAccess(id); err != nil {
		return nil, Job{}, err
	}
	return q.store.Open(id)
}

// Remove deletes a finished job and its files.
func (q *Queue) Remove(id string) (Job, error) {
	job, err := q.store.Get(id)
	if err != nil {
		return Job{}, err
	}
	if !job.Status.Terminal() {
		return job, ErrJobActive
	}

	removed := q.store.Sweep(time.Now().Add(time.Nanosecond), id)
	if len(removed) == 0 {
		return Job{}, ErrNotFound
	}
	logger.Infof("🗑️ Job removed: %s", id)
	return removed[0], nil
}

// List returns every tracked job, newest first.
func (q *Queue) List() []Job {
	return q.store.List()
}

// Stats returns job counts per status.
func (q *Queue) Stats() map[string]int {
	return q.store.Stats()
}

// Sweep removes terminal jobs older than the retention window.
func (q *Queue) Sweep() int {
	cutoff := time.Now().Add(-q.currentSettings().Retention)
	removed := q.store.Sweep(cutoff)
	for _, job := range removed {
		logger.Infof("🧹 Expired job removed: %s (%s)", job.ID, job.Status)
	}
	return len(removed)
}

func (q *Queue) expireOnAccess(id string) error {
	cutoff := time.Now().Add(-q.currentSettings().Retention)
	if removed := q.store.Sweep(cutoff, id); len(removed) > 0 {
		logger.Infof("🧹 Expired job removed on access: %s", id)
		return ErrNotFound
	}
	return nil
}

func (q *Queue) sweeper(interval time.Duration) {
	defer q.sweeps.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.Sweep()
		}
	}
}

type processResult struct {
	outcome Outcome
	err     error
}

// run is the background task of one job. Every path ends in finish.
func (q *Queue) run(job Job, timeout time.Duration) {
	defer q.wg.Done()

	select {
	case q.slots <- struct{}{}:
		defer func() { <-q.slots }()
	case <-q.ctx.Done():
	}

	started, err := q.store.Update(job.ID, func(j *Job) error {
		now := time.Now()
		j.Status = StatusProcessing
		j.StartedAt = &now
		return nil
	})
	if err != nil {
		logger.Errorf("❌ Job %s could not start: %v", job.ID, err)
		return
	}
	job = started

	if q.ctx.Err() != nil {
		q.finish(job, Outcome{}, ErrShuttingDown)
		return
	}

	logger.Infof("🔄 Processing job: %s (%s)", job.ID, job.FileName)

	ctx := q.ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan processResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- processResult{err: fmt.Errorf("internal error: %v", r)}
			}
		}()
		out, err := q.processor.Process(ctx, job)
		done <- processResult{outcome: out, err: err}
	}()

	select {
	case res := <-done:
		q.finish(job, res.outcome, res.err)
	case <-ctx.Done():
		cause := ErrShuttingDown
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			cause = fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}
		q.finish(job, Outcome{}, cause)

		// The abandoned task may still write an artifact; it belongs to nobody.
		go func() {
			res := <-done
			if res.outcome.ResultPath != "" {
				_ = fileops.Remove(res.outcome.ResultPath)
			}
			// A late write can recreate the dir of a job that was already removed.
			if _, err := q.store.Get(job.ID); errors.Is(err, ErrNotFound) {
				_ = fileops.RemoveAll(job.WorkDir)
			}
		}()
	}
}

// finish records the single terminal transition of a job.
func (q *Queue) finish(job Job, out Outcome, procErr error) {
	if procErr == nil && out.ResultPath == "" {
		procErr = errors.New("processor returned no result")
	}

	final, err := q.store.Update(job.ID, func(j *Job) error {
		now := time.Now()
		j.CompletedAt = &now
		if procErr != nil {
			j.Status = StatusFailed
			j.Error = procErr.Error()
			return nil
		}
		j.Status = StatusCompleted
		j.ResultPath = out.ResultPath
		j.Adapter = out.Adapter
		j.CueCount = out.CueCount
		j.AudioDuration = out.AudioDuration
		return nil
	})
	if err != nil {
		logger.Errorf("❌ Job %s: could not record outcome: %v", job.ID, err)
		if out.ResultPath != "" {
			_ = fileops.Remove(out.ResultPath)
		}
		return
	}

	if procErr != nil {
		if out.ResultPath != "" {
			_ = fileops.Remove(out.ResultPath)
		}
		logger.Errorf("❌ Job %s failed: %v", final.ID, procErr)
	} else {
		logger.Infof("✅ Job completed: %s (%d cues via %s)", final.ID, final.CueCount, final.Adapter)
	}

	q.mu.RLock()
	callbacks := q.onFinish
	q.mu.RUnlock()
	if len(callbacks) == 0 {
		return
	}

	// Callbacks run off the job's slot.
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for _, cb := range callbacks {
			cb(final)
		}
	}()
}
