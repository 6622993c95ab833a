package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrEmptyConcept       = errors.New("concept or source file required")
	ErrNoSourceFile       = errors.New("job has no source file to upload")
	ErrNotReady           = errors.New("job is not in a state that allows this action")
	ErrUploadInFlight     = errors.New("upload already in flight")
	ErrCredentialRequired = errors.New("access credential required; consent requested")

	ErrConfiguration   = errors.New("configuration error")
	ErrProvider        = errors.New("provider failure")
	ErrUpload          = errors.New("upload failed")
	ErrThumbnailAttach = errors.New("thumbnail attach failed")
)

// ConfigurationError reports a missing or invalid credential, raised before any network call.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ProviderError reports an unusable response from the generative service.
type ProviderError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// UploadError reports a failed session initiation or transfer. StatusCode is zero
// for network failures, in which case Err carries the transport error.
type UploadError struct {
	Phase      string
	StatusCode int
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("upload %s failed with status %d: %s", e.Phase, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("upload %s failed with status %d (%s)", e.Phase, e.StatusCode, http.StatusText(e.StatusCode))
	case e.Err != nil:
		return fmt.Sprintf("upload %s failed: %v", e.Phase, e.Err)
	default:
		return fmt.Sprintf("upload %s failed: %s", e.Phase, e.Message)
	}
}

func (e *UploadError) Unwrap() error { return e.Err }

func (e *UploadError) Is(target error) bool { return target == ErrUpload }

// ThumbnailAttachError reports a failed thumbnail-set call. It never fails a job.
type ThumbnailAttachError struct {
	VideoID    string
	StatusCode int
	Err        error
}

func (e *ThumbnailAttachError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("set thumbnail for %s: status %d", e.VideoID, e.StatusCode)
	}
	return fmt.Sprintf("set thumbnail for %s: %v", e.VideoID, e.Err)
}

func (e *ThumbnailAttachError) Unwrap() error { return e.Err }

func (e *ThumbnailAttachError) Is(target error) bool { return target == ErrThumbnailAttach }
