// Command publish runs one concept or video file through the pipeline from
// the terminal: metadata, thumbnail and, unless -dry-run is set, the upload.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tubeautomator/internal/auth"
	"tubeautomator/internal/domain"
	"tubeautomator/internal/infra"
	"tubeautomator/internal/pipeline"
	"tubeautomator/internal/providers/genai"
	"tubeautomator/internal/providers/metadata"
	"tubeautomator/internal/providers/thumbnail"
	"tubeautomator/internal/storage"
	"tubeautomator/internal/youtube"
)

func main() {
	var (
		conceptFlag string
		fileFlag    string
		tokenFlag   string
		dryRun      bool
		timeout     time.Duration
	)
	flag.StringVar(&conceptFlag, "concept", "", "Video concept or transcript to analyse")
	flag.StringVar(&fileFlag, "file", "", "Path to the video file to upload")
	flag.StringVar(&tokenFlag, "token", "", "YouTube access token (fallbacks to YOUTUBE_ACCESS_TOKEN)")
	flag.BoolVar(&dryRun, "dry-run", false, "Generate metadata and thumbnail without uploading")
	flag.DurationVar(&timeout, "timeout", 2*time.Hour, "Overall deadline for the run")
	flag.Parse()

	if err := run(conceptFlag, fileFlag, tokenFlag, dryRun, timeout); err != nil {
		fmt.Fprintf(os.Stderr, "publish: %v\n", err)
		os.Exit(1)
	}
}

func run(concept, file, token string, dryRun bool, timeout time.Duration) error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "publish").Logger()

	concept = strings.TrimSpace(concept)
	file = strings.TrimSpace(file)
	if concept == "" && file == "" {
		return errors.New("one of -concept or -file is required")
	}
	if token = strings.TrimSpace(token); token == "" {
		token = strings.TrimSpace(os.Getenv("YOUTUBE_ACCESS_TOKEN"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The source is read in place; the store only resolves it by key.
	var (
		sources *storage.FileStore
		source  *domain.SourceFile
	)
	if file != "" {
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", file)
		}
		sources, err = storage.NewFileStore(filepath.Dir(abs))
		if err != nil {
			return err
		}
		source = &domain.SourceFile{
			Key:      info.Name(),
			Name:     info.Name(),
			Size:     info.Size(),
			MIMEType: storage.DetectMIME("", info.Name()),
		}
	} else {
		sources, err = storage.NewFileStore(os.TempDir())
		if err != nil {
			return err
		}
	}

	genaiClient := genai.NewClient(genai.Options{
		BaseURL:    cfg.GeminiBaseURL,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Logger:     &logger,
	})
	metaGen, err := metadata.NewGenerator(metadata.Options{
		Client: genaiClient,
		Model:  cfg.GeminiTextModel,
		Logger: &logger,
	})
	if err != nil {
		return err
	}
	orchestrator, err := pipeline.New(pipeline.Options{
		Metadata: metaGen,
		Thumbnail: thumbnail.NewGenerator(thumbnail.Options{
			Client: genaiClient,
			Model:  cfg.GeminiImageModel,
			Logger: &logger,
		}),
		Uploader: youtube.NewClient(youtube.Options{
			BaseURL:       cfg.YouTubeUploadBaseURL,
			Logger:        &logger,
			CategoryID:    cfg.YouTubeCategoryID,
			PrivacyStatus: cfg.YouTubePrivacyStatus,
		}),
		Sources:     sources,
		Auth:        auth.NewStaticProvider(token),
		APIKey:      cfg.GeminiAPIKey,
		BaseContext: ctx,
		Logger:      &logger,
	})
	if err != nil {
		return err
	}

	job, err := orchestrator.Submit(pipeline.NewJob{Concept: concept, Source: source})
	if err != nil {
		return err
	}
	job, err = orchestrator.Await(ctx, job.ID, func(j domain.Job) bool {
		return j.Status == domain.JobStatusReadyToUpload || j.Status == domain.JobStatusFailed
	})
	if err != nil {
		return err
	}
	if job.Status == domain.JobStatusFailed {
		return fmt.Errorf("%s failed: %s", job.FailedStage, job.Error)
	}
	printMetadata(os.Stdout, job)

	if dryRun {
		return nil
	}
	if !job.CanUpload() {
		return errors.New("no video file given; pass -file to upload or -dry-run to stop here")
	}
	if err := orchestrator.Upload(ctx, job.ID); err != nil {
		if errors.Is(err, domain.ErrCredentialRequired) {
			return errors.New("an access token is required; pass -token or set YOUTUBE_ACCESS_TOKEN")
		}
		return err
	}

	lastShown := -1
	job, err = orchestrator.Await(ctx, job.ID, func(j domain.Job) bool {
		if j.Status == domain.JobStatusUploading && j.Progress != lastShown {
			lastShown = j.Progress
			fmt.Fprintf(os.Stderr, "\ruploading... %3d%%", j.Progress)
		}
		return j.Status.Terminal()
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	if job.Status == domain.JobStatusFailed {
		return fmt.Errorf("upload failed: %s", job.Error)
	}
	fmt.Printf("published: https://youtu.be/%s\n", job.RemoteID)
	return nil
}

func printMetadata(w io.Writer, job domain.Job) {
	meta := job.Result
	fmt.Fprintf(w, "title:       %s\n", meta.Title)
	fmt.Fprintf(w, "tags:        %s\n", strings.Join(meta.Tags, ", "))
	fmt.Fprintf(w, "thumbnail:   %s\n", thumbnailLabel(meta.Thumbnail))
	fmt.Fprintf(w, "cost (est.): $%.4f\n\n", meta.EstimatedCost)
	fmt.Fprintln(w, meta.Description)
	fmt.Fprintln(w)
}

func thumbnailLabel(ref domain.ImageRef) string {
	if !ref.IsInline() {
		return string(ref)
	}
	mimeType, data, err := ref.Decode()
	if err != nil {
		return "inline (unreadable)"
	}
	return fmt.Sprintf("inline %s, %d bytes", mimeType, len(data))
}
