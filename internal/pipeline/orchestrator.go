package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tubeautomator/internal/auth"
	"tubeautomator/internal/domain"
	"tubeautomator/internal/infra"
	"tubeautomator/internal/youtube"
)

type MetadataGenerator interface {
	Generate(ctx context.Context, apiKey, concept string) (*domain.Metadata, error)
}

// ThumbnailGenerator never fails; it degrades to a placeholder reference.
type ThumbnailGenerator interface {
	Generate(ctx context.Context, apiKey, prompt string) domain.ImageRef
}

type Uploader interface {
	UploadVideo(ctx context.Context, token string, video youtube.Video, meta domain.Metadata, progress youtube.ProgressSink) (string, error)
	SetThumbnail(ctx context.Context, token, videoID string, image domain.ImageRef) error
}

type SourceOpener interface {
	Open(key string) (io.ReadCloser, int64, error)
}

type PublicationRecorder interface {
	Record(ctx context.Context, p domain.Publication) error
}

type Options struct {
	Metadata  MetadataGenerator
	Thumbnail ThumbnailGenerator
	Uploader  Uploader
	Sources   SourceOpener
	Auth      auth.Provider
	// Publications is optional.
	Publications PublicationRecorder

	// APIKey is the generative service key; KeyLookup is consulted when it is empty.
	APIKey    string
	KeyLookup func(ctx context.Context) (string, error)

	// BaseContext scopes every pipeline goroutine. Cancel it to abort in-flight work.
	BaseContext context.Context
	Now         func() time.Time
	NewID       func() string
	Logger      *infra.Logger
}

// NewJob is a creation request: concept text, a stored source file, or both.
type NewJob struct {
	Concept string
	Source  *domain.SourceFile
}

// Orchestrator owns the job collection and drives each job through
// analysis, thumbnail generation and upload. Jobs run independently; the
// collection is the only shared state and every update replaces a job value
// as a whole under the lock.
type Orchestrator struct {
	meta         MetadataGenerator
	thumb        ThumbnailGenerator
	uploader     Uploader
	sources      SourceOpener
	auth         auth.Provider
	publications PublicationRecorder
	apiKey       string
	keyLookup    func(ctx context.Context) (string, error)
	baseCtx      context.Context
	now          func() time.Time
	newID        func() string
	logger       infra.Logger

	mu      sync.Mutex
	jobs    map[string]domain.Job
	order   []string
	drafts  int
	changed chan struct{}

	wg sync.WaitGroup
}

func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Metadata == nil:
		return nil, errors.New("pipeline: metadata generator is required")
	case opts.Thumbnail == nil:
		return nil, errors.New("pipeline: thumbnail generator is required")
	case opts.Uploader == nil:
		return nil, errors.New("pipeline: uploader is required")
	case opts.Sources == nil:
		return nil, errors.New("pipeline: source store is required")
	case opts.Auth == nil:
		return nil, errors.New("pipeline: credential provider is required")
	}
	baseCtx := opts.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Orchestrator{
		meta:         opts.Metadata,
		thumb:        opts.Thumbnail,
		uploader:     opts.Uploader,
		sources:      opts.Sources,
		auth:         opts.Auth,
		publications: opts.Publications,
		apiKey:       strings.TrimSpace(opts.APIKey),
		keyLookup:    opts.KeyLookup,
		baseCtx:      baseCtx,
		now:          now,
		newID:        newID,
		logger:       infra.LoggerOrNop(opts.Logger),
		jobs:         make(map[string]domain.Job),
		changed:      make(chan struct{}),
	}, nil
}

// Submit creates a job and starts its pipeline immediately. The returned
// value is already past Idle.
func (o *Orchestrator) Submit(req NewJob) (domain.Job, error) {
	concept := strings.TrimSpace(req.Concept)
	if concept == "" && req.Source == nil {
		return domain.Job{}, domain.ErrEmptyConcept
	}

	now := o.now()
	job := domain.Job{
		ID:        o.newID(),
		Status:    domain.JobStatusIdle,
		FileSize:  domain.HumanSize(0),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Source != nil {
		src := *req.Source
		job.SourceFile = &src
		job.Filename = src.Name
		job.FileSize = domain.HumanSize(src.Size)
		if concept == "" {
			concept = "A video file named " + src.Name
		}
	}
	job.Concept = concept

	o.mu.Lock()
	if job.SourceFile == nil {
		o.drafts++
		job.Filename = fmt.Sprintf("video_draft_%d.mp4", o.drafts)
	}
	job.Status = domain.JobStatusAnalyzing
	o.jobs[job.ID] = job
	o.order = append([]string{job.ID}, o.order...)
	o.broadcastLocked()
	o.mu.Unlock()

	o.logger.Info().
		Str("job_id", job.ID).
		Bool("has_source", job.SourceFile != nil).
		Msg("pipeline: job created")

	o.spawn(func() { o.runAnalysis(job.ID) })
	return job.Clone(), nil
}

// Jobs returns every job, newest first.
func (o *Orchestrator) Jobs() []domain.Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.Job, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.jobs[id].Clone())
	}
	return out
}

func (o *Orchestrator) Job(id string) (domain.Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return job.Clone(), nil
}

// Changes returns a channel closed on the next job update.
func (o *Orchestrator) Changes() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.changed
}

// Await blocks until cond holds for the job or ctx ends.
func (o *Orchestrator) Await(ctx context.Context, id string, cond func(domain.Job) bool) (domain.Job, error) {
	for {
		o.mu.Lock()
		job, ok := o.jobs[id]
		changed := o.changed
		o.mu.Unlock()
		if !ok {
			return domain.Job{}, domain.ErrNotFound
		}
		if cond(job) {
			return job.Clone(), nil
		}
		select {
		case <-ctx.Done():
			return job.Clone(), ctx.Err()
		case <-changed:
		}
	}
}

// Upload starts the upload of a ready job. Without a credential nothing is
// sent: a token request is issued and ErrCredentialRequired returned.
func (o *Orchestrator) Upload(ctx context.Context, id string) error {
	o.mu.Lock()
	job, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return domain.ErrNotFound
	}
	switch {
	case job.Status == domain.JobStatusUploading:
		o.mu.Unlock()
		return domain.ErrUploadInFlight
	case job.Status != domain.JobStatusReadyToUpload:
		o.mu.Unlock()
		return domain.ErrNotReady
	}
	return o.startUploadLocked(ctx, job)
}

// Retry re-drives a failed job from the stage it failed at.
func (o *Orchestrator) Retry(ctx context.Context, id string) error {
	o.mu.Lock()
	job, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusFailed {
		o.mu.Unlock()
		return domain.ErrNotReady
	}
	target, err := domain.RetryTarget(job.FailedStage)
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: %v", domain.ErrNotReady, err)
	}

	if target == domain.JobStatusUploading {
		return o.startUploadLocked(ctx, job)
	}

	job.Status = domain.JobStatusAnalyzing
	job.FailedStage = domain.StageNone
	job.Error = ""
	if !o.storeLocked(job) {
		o.mu.Unlock()
		return domain.ErrNotReady
	}
	o.mu.Unlock()

	o.logger.Info().Str("job_id", id).Msg("pipeline: retrying analysis")
	o.spawn(func() { o.runAnalysis(id) })
	return nil
}

// Shutdown waits for in-flight pipelines or for ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startUploadLocked is entered with o.mu held and releases it.
func (o *Orchestrator) startUploadLocked(ctx context.Context, job domain.Job) error {
	if !job.CanUpload() {
		o.mu.Unlock()
		return domain.ErrNoSourceFile
	}
	if job.Result == nil {
		o.mu.Unlock()
		return domain.ErrNotReady
	}
	token, ok := o.auth.Token()
	if !ok {
		o.mu.Unlock()
		if err := o.auth.RequestToken(ctx); err != nil {
			o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("pipeline: credential request failed")
		}
		return domain.ErrCredentialRequired
	}

	job.Status = domain.JobStatusUploading
	job.Progress = 0
	job.FailedStage = domain.StageNone
	job.Error = ""
	if !o.storeLocked(job) {
		o.mu.Unlock()
		return domain.ErrNotReady
	}
	o.mu.Unlock()

	o.spawn(func() { o.runUpload(job.ID, token) })
	return nil
}

func (o *Orchestrator) runAnalysis(id string) {
	ctx := o.baseCtx
	job, err := o.Job(id)
	if err != nil {
		return
	}
	key := o.resolveKey(ctx)

	meta, err := o.meta.Generate(ctx, key, job.Concept)
	if err != nil {
		o.fail(id, domain.StageAnalysis, err)
		return
	}
	advanced := o.update(id, func(j *domain.Job) {
		res := meta.Clone()
		if j.Result != nil && res.Thumbnail == "" {
			res.Thumbnail = j.Result.Thumbnail
		}
		j.Result = &res
		j.Status = domain.JobStatusGeneratingThumbnail
	})
	if !advanced {
		return
	}

	ref := o.thumb.Generate(ctx, key, meta.ThumbnailPrompt)
	advanced = o.update(id, func(j *domain.Job) {
		res := j.Result.Clone()
		if ref != "" {
			res.Thumbnail = ref
		}
		j.Result = &res
		j.Status = domain.JobStatusReadyToUpload
	})
	if !advanced {
		return
	}
	o.logger.Info().
		Str("job_id", id).
		Bool("thumbnail_inline", ref.IsInline()).
		Msg("pipeline: job ready to upload")
}

func (o *Orchestrator) runUpload(id, token string) {
	ctx := o.baseCtx
	job, err := o.Job(id)
	if err != nil {
		return
	}

	body, size, err := o.sources.Open(job.SourceFile.Key)
	if err != nil {
		o.fail(id, domain.StageUpload, &domain.UploadError{Phase: "read", Err: err})
		return
	}
	defer body.Close()

	sink := youtube.ProgressFunc(func(p int) { o.setProgress(id, p) })
	remoteID, err := o.uploader.UploadVideo(ctx, token, youtube.Video{
		Body:        body,
		Size:        size,
		ContentType: job.SourceFile.MIMEType,
	}, *job.Result, sink)
	if err != nil {
		if youtube.IsUnauthorized(err) {
			o.auth.Invalidate()
		}
		o.fail(id, domain.StageUpload, err)
		return
	}

	if thumb := job.Result.Thumbnail; thumb.IsInline() {
		if err := o.uploader.SetThumbnail(ctx, token, remoteID, thumb); err != nil {
			o.logger.Warn().
				Err(err).
				Str("job_id", id).
				Str("remote_id", remoteID).
				Msg("pipeline: thumbnail attach failed; video kept")
		}
	}

	completed := o.update(id, func(j *domain.Job) {
		j.Status = domain.JobStatusCompleted
		j.RemoteID = remoteID
		j.Progress = 100
	})
	if !completed {
		return
	}
	o.logger.Info().Str("job_id", id).Str("remote_id", remoteID).Msg("pipeline: job completed")

	if o.publications != nil {
		err := o.publications.Record(ctx, domain.Publication{
			JobID:       id,
			RemoteID:    remoteID,
			Title:       job.Result.Title,
			PublishedAt: o.now(),
		})
		if err != nil {
			o.logger.Warn().Err(err).Str("job_id", id).Msg("pipeline: publication record failed")
		}
	}
}

func (o *Orchestrator) resolveKey(ctx context.Context) string {
	if o.apiKey != "" || o.keyLookup == nil {
		return o.apiKey
	}
	key, err := o.keyLookup(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("pipeline: api key lookup failed")
		return ""
	}
	return strings.TrimSpace(key)
}

func (o *Orchestrator) fail(id string, stage domain.Stage, err error) {
	applied := o.update(id, func(j *domain.Job) {
		j.Status = domain.JobStatusFailed
		j.FailedStage = stage
		j.Error = err.Error()
	})
	if !applied {
		return
	}
	o.logger.Error().
		Err(err).
		Str("job_id", id).
		Str("stage", string(stage)).
		Msg("pipeline: job failed")
}

func (o *Orchestrator) setProgress(id string, pct int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[id]
	if !ok || job.Status != domain.JobStatusUploading || pct <= job.Progress {
		return
	}
	job.Progress = pct
	o.storeLocked(job)
}

func (o *Orchestrator) update(id string, fn func(*domain.Job)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[id]
	if !ok {
		return false
	}
	job = job.Clone()
	fn(&job)
	return o.storeLocked(job)
}

// storeLocked replaces the stored job. A status change the state machine
// does not allow is logged and dropped.
func (o *Orchestrator) storeLocked(job domain.Job) bool {
	if prev, ok := o.jobs[job.ID]; ok && prev.Status != job.Status && !prev.CanMoveTo(job.Status) {
		o.logger.Warn().
			Str("job_id", job.ID).
			Str("from", string(prev.Status)).
			Str("to", string(job.Status)).
			Msg("pipeline: invalid transition dropped")
		return false
	}
	job.UpdatedAt = o.now()
	o.jobs[job.ID] = job
	o.broadcastLocked()
	return true
}

func (o *Orchestrator) broadcastLocked() {
	close(o.changed)
	o.changed = make(chan struct{})
}

func (o *Orchestrator) spawn(fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
}
