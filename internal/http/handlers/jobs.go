package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tubeautomator/internal/domain"
	"tubeautomator/internal/pipeline"
	"tubeautomator/internal/storage"
	"tubeautomator/pkg/zip"
)

const maxConceptBytes = 64 << 10

type createJobRequest struct {
	Concept string `json:"concept"`
}

type jobListResponse struct {
	Jobs []domain.Job `json:"jobs"`
}

// CreateJob accepts either a JSON concept or a multipart form carrying a
// "file" part and an optional "concept" field.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	var (
		req pipeline.NewJob
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err = a.readMultipartJob(w, r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				a.error(w, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
				return
			}
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	} else {
		var body createJobRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxConceptBytes)).Decode(&body); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
			return
		}
		req.Concept = body.Concept
	}

	job, err := a.Jobs.Submit(req)
	if err != nil {
		if req.Source != nil {
			_ = a.Sources.Remove(req.Source.Key)
		}
		a.jobError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/jobs/"+job.ID)
	a.json(w, http.StatusAccepted, job)
}

func (a *App) readMultipartJob(w http.ResponseWriter, r *http.Request) (pipeline.NewJob, error) {
	var req pipeline.NewJob
	if a.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return req, fmt.Errorf("invalid multipart body: %w", err)
	}
	cleanup := func() {
		if req.Source != nil {
			_ = a.Sources.Remove(req.Source.Key)
		}
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			cleanup()
			return pipeline.NewJob{}, err
		}
		err = a.readJobPart(r.Context(), part, &req)
		_ = part.Close()
		if err != nil {
			cleanup()
			return pipeline.NewJob{}, err
		}
	}
	return req, nil
}

func (a *App) readJobPart(ctx context.Context, part *multipart.Part, req *pipeline.NewJob) error {
	switch part.FormName() {
	case "concept":
		data, err := io.ReadAll(io.LimitReader(part, maxConceptBytes))
		if err != nil {
			return err
		}
		req.Concept = string(data)
	case "file":
		if req.Source != nil {
			return errors.New("only one file per job")
		}
		name := strings.TrimSpace(part.FileName())
		if name == "" {
			return errors.New("file part needs a filename")
		}
		key, size, err := a.Sources.Save(ctx, storage.SourceKey(a.NewKey(), name), part)
		if err != nil {
			return err
		}
		req.Source = &domain.SourceFile{
			Key:      key,
			Name:     name,
			Size:     size,
			MIMEType: storage.DetectMIME(part.Header.Get("Content-Type"), name),
		}
	}
	return nil
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, jobListResponse{Jobs: a.Jobs.Jobs()})
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Job(chi.URLParam(r, "job_id"))
	if err != nil {
		a.jobError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, job)
}

// JobThumbnail serves inline thumbnails and redirects to placeholder URLs.
func (a *App) JobThumbnail(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Job(chi.URLParam(r, "job_id"))
	if err != nil {
		a.jobError(w, r, err)
		return
	}
	if job.Result == nil || job.Result.Thumbnail == "" {
		a.error(w, http.StatusNotFound, "not_found", "thumbnail not generated yet")
		return
	}
	ref := job.Result.Thumbnail
	if !ref.IsInline() {
		http.Redirect(w, r, string(ref), http.StatusFound)
		return
	}
	mimeType, data, err := ref.Decode()
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("http: thumbnail decode failed")
		a.error(w, http.StatusInternalServerError, "internal", "thumbnail unreadable")
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type bundleMetadata struct {
	JobID           string   `json:"job_id"`
	Concept         string   `json:"concept"`
	Filename        string   `json:"filename"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags"`
	ThumbnailPrompt string   `json:"thumbnail_prompt"`
	ThumbnailURL    string   `json:"thumbnail_url,omitempty"`
	EstimatedCost   float64  `json:"estimated_cost"`
	RemoteID        string   `json:"remote_id,omitempty"`
}

// JobBundle exports generated metadata and the inline thumbnail as a zip.
func (a *App) JobBundle(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Job(chi.URLParam(r, "job_id"))
	if err != nil {
		a.jobError(w, r, err)
		return
	}
	if job.Result == nil || job.Status == domain.JobStatusAnalyzing || job.Status == domain.JobStatusGeneratingThumbnail {
		a.error(w, http.StatusConflict, "invalid_state", "metadata is not ready")
		return
	}
	meta := bundleMetadata{
		JobID:           job.ID,
		Concept:         job.Concept,
		Filename:        job.Filename,
		Title:           job.Result.Title,
		Description:     job.Result.Description,
		Tags:            job.Result.Tags,
		ThumbnailPrompt: job.Result.ThumbnailPrompt,
		EstimatedCost:   job.Result.EstimatedCost,
		RemoteID:        job.RemoteID,
	}
	assets := make([]zip.Asset, 0, 2)
	if ref := job.Result.Thumbnail; ref.IsInline() {
		if mimeType, data, err := ref.Decode(); err == nil {
			assets = append(assets, zip.Asset{Filename: "thumbnail" + imageExtension(mimeType), MIME: mimeType, Data: data})
		}
	} else {
		meta.ThumbnailURL = string(ref)
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "encode metadata")
		return
	}
	assets = append([]zip.Asset{{Filename: "metadata.json", MIME: "application/json", Data: metaJSON}}, assets...)

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="job-%s.zip"`, job.ID))
	if err := zip.WriteArchive(w, assets, time.Now()); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("http: bundle write failed")
	}
}

func (a *App) UploadJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	if err := a.Jobs.Upload(r.Context(), id); err != nil {
		a.jobError(w, r, err)
		return
	}
	a.acceptedJob(w, r, id)
}

func (a *App) RetryJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	if err := a.Jobs.Retry(r.Context(), id); err != nil {
		a.jobError(w, r, err)
		return
	}
	a.acceptedJob(w, r, id)
}

func (a *App) acceptedJob(w http.ResponseWriter, r *http.Request, id string) {
	job, err := a.Jobs.Job(id)
	if err != nil {
		a.jobError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, job)
}

func imageExtension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/png":
		return ".png"
	default:
		return ".bin"
	}
}
