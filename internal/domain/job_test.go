package domain

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestJobStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusIdle, JobStatusAnalyzing, true},
		{JobStatusAnalyzing, JobStatusGeneratingThumbnail, true},
		{JobStatusAnalyzing, JobStatusFailed, true},
		{JobStatusGeneratingThumbnail, JobStatusReadyToUpload, true},
		{JobStatusReadyToUpload, JobStatusUploading, true},
		{JobStatusUploading, JobStatusCompleted, true},
		{JobStatusUploading, JobStatusFailed, true},
		{JobStatusReadyToUpload, JobStatusFailed, false},
		{JobStatusCompleted, JobStatusUploading, false},
		{JobStatusFailed, JobStatusAnalyzing, false},
		{JobStatusIdle, JobStatusUploading, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("%s -> %s = %t, want %t", tc.from, tc.to, got, tc.want)
		}
	}
	if !JobStatusCompleted.Terminal() || !JobStatusFailed.Terminal() || JobStatusReadyToUpload.Terminal() {
		t.Fatal("terminal classification mismatch")
	}
}

func TestRetryTarget(t *testing.T) {
	if s, err := RetryTarget(StageAnalysis); err != nil || s != JobStatusAnalyzing {
		t.Fatalf("analysis retry = %q, %v", s, err)
	}
	if s, err := RetryTarget(StageUpload); err != nil || s != JobStatusUploading {
		t.Fatalf("upload retry = %q, %v", s, err)
	}
	if _, err := RetryTarget(StageNone); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestJobCanMoveTo(t *testing.T) {
	cases := []struct {
		name string
		job  Job
		to   JobStatus
		want bool
	}{
		{"forward", Job{Status: JobStatusReadyToUpload}, JobStatusUploading, true},
		{"skip ahead", Job{Status: JobStatusAnalyzing}, JobStatusReadyToUpload, false},
		{"retry analysis", Job{Status: JobStatusFailed, FailedStage: StageAnalysis}, JobStatusAnalyzing, true},
		{"retry upload", Job{Status: JobStatusFailed, FailedStage: StageUpload}, JobStatusUploading, true},
		{"retry into wrong stage", Job{Status: JobStatusFailed, FailedStage: StageAnalysis}, JobStatusUploading, false},
		{"failed without stage", Job{Status: JobStatusFailed}, JobStatusAnalyzing, false},
		{"completed is final", Job{Status: JobStatusCompleted}, JobStatusFailed, false},
	}
	for _, tc := range cases {
		if got := tc.job.CanMoveTo(tc.to); got != tc.want {
			t.Fatalf("%s: CanMoveTo(%s) = %t, want %t", tc.name, tc.to, got, tc.want)
		}
	}
}

func TestJobCloneDoesNotAlias(t *testing.T) {
	orig := Job{
		ID:         "1",
		SourceFile: &SourceFile{Key: "k"},
		Result:     &Metadata{Tags: []string{"a", "b"}},
	}
	cp := orig.Clone()
	cp.Result.Tags[0] = "changed"
	cp.SourceFile.Key = "other"
	if orig.Result.Tags[0] != "a" || orig.SourceFile.Key != "k" {
		t.Fatalf("clone aliased the original: %+v", orig)
	}
}

func TestImageRefDecode(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'})
	ref := InlineImage("image/jpeg", payload)
	if !ref.IsInline() {
		t.Fatal("expected inline ref")
	}
	mime, data, err := ref.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if mime != "image/jpeg" || string(data) != "\x89PNG" {
		t.Fatalf("decoded %q %v", mime, data)
	}
	if _, _, err := FallbackThumbnail.Decode(); err == nil {
		t.Fatal("expected error decoding placeholder url")
	}
	if InlineImage("", payload) != ImageRef("data:image/png;base64,"+payload) {
		t.Fatal("expected default png mime")
	}
}

func TestMetadataDescriptionWithTags(t *testing.T) {
	m := Metadata{Description: "Body", Tags: []string{"go", "video"}}
	if got := m.DescriptionWithTags(); got != "Body\n\nTags: go, video" {
		t.Fatalf("description = %q", got)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = &UploadError{Phase: "initiate", StatusCode: 403}
	if !errors.Is(err, ErrUpload) {
		t.Fatal("upload error should match ErrUpload")
	}
	if err.Error() != "upload initiate failed with status 403 (Forbidden)" {
		t.Fatalf("message = %q", err.Error())
	}
	if !errors.Is(&ConfigurationError{Field: "api key", Reason: "is required"}, ErrConfiguration) {
		t.Fatal("configuration error should match sentinel")
	}
	cause := errors.New("boom")
	perr := &ProviderError{Provider: "gemini", Reason: "request", Err: cause}
	if !errors.Is(perr, ErrProvider) || !errors.Is(perr, cause) {
		t.Fatal("provider error should match sentinel and cause")
	}
	if errors.Is(&ThumbnailAttachError{VideoID: "v"}, ErrUpload) {
		t.Fatal("thumbnail attach error must not look like an upload failure")
	}
}

func TestHumanSize(t *testing.T) {
	if HumanSize(0) != "Unknown" {
		t.Fatal("zero size should be unknown")
	}
	if got := HumanSize(5 * 1024 * 1024); got != "5.0 MB" {
		t.Fatalf("size = %q", got)
	}
}
