package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tubeautomator/internal/domain"
	"tubeautomator/internal/infra"
)

const (
	defaultBaseURL     = "https://www.googleapis.com/upload/youtube/v3"
	defaultContentType = "video/mp4"
	uploadParts        = "snippet,status,contentDetails"
)

// Video is the byte stream handed to the transfer step. Size must be exact;
// it is declared up front when the session is opened.
type Video struct {
	Body        io.Reader
	Size        int64
	ContentType string
}

type Options struct {
	BaseURL       string
	HTTPClient    *http.Client
	Logger        *infra.Logger
	CategoryID    string
	PrivacyStatus string
}

// Client speaks the resumable upload protocol plus the thumbnail-set call.
// Every method takes the bearer token explicitly and makes a single attempt.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	logger        infra.Logger
	categoryID    string
	privacyStatus string
}

func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 6 * time.Hour}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	category := strings.TrimSpace(opts.CategoryID)
	if category == "" {
		category = "22"
	}
	privacy := strings.TrimSpace(opts.PrivacyStatus)
	if privacy == "" {
		privacy = "private"
	}
	return &Client{
		baseURL:       baseURL,
		httpClient:    client,
		logger:        infra.LoggerOrNop(opts.Logger),
		categoryID:    category,
		privacyStatus: privacy,
	}
}

type snippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CategoryID  string   `json:"categoryId"`
}

type status struct {
	PrivacyStatus           string `json:"privacyStatus"`
	SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
}

type videoResource struct {
	Snippet snippet `json:"snippet"`
	Status  status  `json:"status"`
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// UploadVideo opens a resumable session for meta and transfers the video in a
// single PUT. Progress receives rounded, non-decreasing percentages and ends
// with 100 once the host has answered with the new video id.
func (c *Client) UploadVideo(ctx context.Context, token string, video Video, meta domain.Metadata, progress ProgressSink) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.ErrCredentialRequired
	}
	if video.Body == nil || video.Size < 0 {
		return "", &domain.UploadError{Phase: "initiate", Message: "video stream is missing"}
	}
	contentType := strings.TrimSpace(video.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}
	if progress == nil {
		progress = nopSink{}
	}

	session, err := c.initiate(ctx, token, video.Size, contentType, meta)
	if err != nil {
		return "", err
	}
	c.logger.Debug().
		Str("session_host", session.Host).
		Int64("bytes", video.Size).
		Msg("youtube: upload session opened")

	id, err := c.transfer(ctx, token, session, video, contentType, progress)
	if err != nil {
		return "", err
	}
	c.logger.Info().
		Str("video_id", id).
		Int64("bytes", video.Size).
		Msg("youtube: video uploaded")
	return id, nil
}

func (c *Client) initiate(ctx context.Context, token string, size int64, contentType string, meta domain.Metadata) (*url.URL, error) {
	body, err := json.Marshal(videoResource{
		Snippet: snippet{
			Title:       meta.Title,
			Description: meta.DescriptionWithTags(),
			Tags:        meta.Tags,
			CategoryID:  c.categoryID,
		},
		Status: status{PrivacyStatus: c.privacyStatus},
	})
	if err != nil {
		return nil, &domain.UploadError{Phase: "initiate", Err: fmt.Errorf("marshal metadata: %w", err)}
	}

	endpoint := c.baseURL + "/videos?uploadType=resumable&part=" + uploadParts
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.UploadError{Phase: "initiate", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set("X-Upload-Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.UploadError{Phase: "initiate", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError("initiate", resp)
	}
	location, err := resp.Location()
	if err != nil {
		return nil, &domain.UploadError{Phase: "initiate", StatusCode: resp.StatusCode, Message: "response did not include a session location"}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return location, nil
}

func (c *Client) transfer(ctx context.Context, token string, session *url.URL, video Video, contentType string, progress ProgressSink) (string, error) {
	counter := newProgressReader(video.Body, video.Size, progress)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.String(), counter)
	if err != nil {
		return "", &domain.UploadError{Phase: "transfer", Err: err}
	}
	req.ContentLength = video.Size
	if video.Size == 0 {
		req.Body = http.NoBody
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)

	counter.start()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &domain.UploadError{Phase: "transfer", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError("transfer", resp)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", &domain.UploadError{Phase: "transfer", StatusCode: resp.StatusCode, Message: "could not decode upload response", Err: err}
	}
	id := strings.TrimSpace(out.ID)
	if id == "" {
		return "", &domain.UploadError{Phase: "transfer", StatusCode: resp.StatusCode, Message: "response did not include a video id"}
	}
	counter.finish()
	return id, nil
}

// SetThumbnail posts an inline image as the custom thumbnail for videoID.
// Placeholder URLs are rejected; callers only attach generated images.
func (c *Client) SetThumbnail(ctx context.Context, token, videoID string, image domain.ImageRef) error {
	mimeType, data, err := image.Decode()
	if err != nil {
		return &domain.ThumbnailAttachError{VideoID: videoID, Err: err}
	}
	endpoint := c.baseURL + "/thumbnails/set?videoId=" + url.QueryEscape(videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return &domain.ThumbnailAttachError{VideoID: videoID, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	req.Header.Set("Content-Type", mimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.ThumbnailAttachError{VideoID: videoID, Err: &domain.UploadError{Phase: "thumbnail", Err: err}}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.ThumbnailAttachError{VideoID: videoID, StatusCode: resp.StatusCode, Err: statusError("thumbnail", resp)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}

func statusError(phase string, resp *http.Response) *domain.UploadError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	out := &domain.UploadError{Phase: phase, StatusCode: resp.StatusCode}
	var decoded errorBody
	if err := json.Unmarshal(data, &decoded); err == nil && decoded.Error.Message != "" {
		out.Message = decoded.Error.Message
	}
	return out
}

// IsUnauthorized reports whether err is an upload rejected for its credential.
func IsUnauthorized(err error) bool {
	var upErr *domain.UploadError
	return errors.As(err, &upErr) && upErr.StatusCode == http.StatusUnauthorized
}
