package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFileStoreSaveAndOpen(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	key, n, err := store.Save(context.Background(), "sources/job-1/clip.mp4", strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if key != "sources/job-1/clip.mp4" || n != int64(len("video-bytes")) {
		t.Fatalf("Save = %q, %d", key, n)
	}
	rc, size, err := store.Open(key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "video-bytes" || size != n {
		t.Fatalf("Open returned %q (%d)", data, size)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, _, err := store.Save(context.Background(), "../escape.txt", strings.NewReader("x")); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
	if _, _, err := store.Open(".."); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestFileStoreOpenMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, _, err := store.Open("nope.mp4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Remove("nope.mp4"); err != nil {
		t.Fatalf("Remove of missing key: %v", err)
	}
}

func TestSourceKeyStripsDirectories(t *testing.T) {
	if got := SourceKey("job-1", "../../etc/passwd"); got != "sources/job-1/passwd" {
		t.Fatalf("SourceKey = %q", got)
	}
	if got := SourceKey("job-1", `C:\videos\clip.mov`); got != "sources/job-1/clip.mov" {
		t.Fatalf("SourceKey = %q", got)
	}
	if got := SourceKey("job-1", ""); got != "sources/job-1/source.bin" {
		t.Fatalf("SourceKey = %q", got)
	}
}

func TestDetectMIME(t *testing.T) {
	if got := DetectMIME("video/webm", "clip.mp4"); got != "video/webm" {
		t.Fatalf("declared type ignored: %q", got)
	}
	if got := DetectMIME("application/octet-stream", "clip.unknownext"); got != DefaultVideoMIME {
		t.Fatalf("fallback = %q", got)
	}
}
