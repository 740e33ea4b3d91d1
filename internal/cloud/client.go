// Package cloud is the HTTP client for the remote recording service. The
// backend owns sessions once created; this client only drives the
// promotion calls and reads listings.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xowhq/boothcore/internal/models"
)

const defaultTimeout = 15 * time.Second

// Client talks to the remote recording service. Control calls use a short
// timeout; media uploads get a longer one sized for large file transfer.
type Client struct {
	baseURL string
	control *http.Client
	upload  *http.Client
}

// NewClient creates a client for the given base URL (e.g.
// "https://api.example.com"). uploadTimeout <= 0 selects 5 minutes.
func NewClient(baseURL string, uploadTimeout time.Duration) *Client {
	if uploadTimeout <= 0 {
		uploadTimeout = 5 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		control: &http.Client{Timeout: defaultTimeout},
		upload:  &http.Client{Timeout: uploadTimeout},
	}
}

type createRecordingRequest struct {
	DeviceID  string `json:"device_id"`
	ExpoName  string `json:"expo_name"`
	BoothName string `json:"booth_name"`
}

// CreateRecording registers a new cloud session and returns it, remote id
// assigned.
func (c *Client) CreateRecording(ctx context.Context, deviceID, expoName, boothName string) (*models.CloudSession, error) {
	body, err := json.Marshal(createRecordingRequest{DeviceID: deviceID, ExpoName: expoName, BoothName: boothName})
	if err != nil {
		return nil, fmt.Errorf("encode create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/recordings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var session models.CloudSession
	if err := c.do(c.control, req, &session); err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	if session.RemoteID == "" {
		return nil, fmt.Errorf("create recording: response missing id")
	}
	return &session, nil
}

// UploadVideo attaches the video track to a remote session.
func (c *Client) UploadVideo(ctx context.Context, remoteID, filename string, media io.Reader) error {
	return c.uploadMedia(ctx, remoteID, "upload-video", "video", filename, media)
}

// UploadAudio attaches the audio track to a remote session.
func (c *Client) UploadAudio(ctx context.Context, remoteID, filename string, media io.Reader) error {
	return c.uploadMedia(ctx, remoteID, "upload-audio", "audio", filename, media)
}

// uploadMedia streams the file through an io.Pipe so a multi-gigabyte
// session video never sits in memory; the multipart body is written
// concurrently as the request sends it.
func (c *Client) uploadMedia(ctx context.Context, remoteID, endpoint, field, filename string, media io.Reader) error {
	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)
	go func() {
		part, err := w.CreateFormFile(field, filename)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("create multipart: %w", err))
			return
		}
		if _, err := io.Copy(part, media); err != nil {
			pw.CloseWithError(fmt.Errorf("read media: %w", err))
			return
		}
		pw.CloseWithError(w.Close())
	}()

	u := fmt.Sprintf("%s/api/recordings/%s/%s", c.baseURL, url.PathEscape(remoteID), endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	if err := c.do(c.upload, req, nil); err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	return nil
}

type submitScanRequest struct {
	RecordingID    string  `json:"recording_id"`
	BarcodeData    string  `json:"barcode_data"`
	VisitorName    string  `json:"visitor_name,omitempty"`
	VideoTimestamp float64 `json:"video_timestamp"`
	FrameCode      int     `json:"frame_code"`
}

// SubmitScan attaches one badge scan to a remote session.
func (c *Client) SubmitScan(ctx context.Context, remoteID string, event models.ScanEvent) error {
	body, err := json.Marshal(submitScanRequest{
		RecordingID:    remoteID,
		BarcodeData:    event.BarcodeData,
		VisitorName:    event.VisitorName,
		VideoTimestamp: event.VideoTimestamp,
		FrameCode:      event.FrameCode,
	})
	if err != nil {
		return fmt.Errorf("encode scan: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/barcodes", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(c.control, req, nil); err != nil {
		return fmt.Errorf("submit scan: %w", err)
	}
	return nil
}

// CompleteRecording marks a remote session finalized, triggering the async
// AI pipeline.
func (c *Client) CompleteRecording(ctx context.Context, remoteID string) error {
	u := fmt.Sprintf("%s/api/recordings/%s/complete", c.baseURL, url.PathEscape(remoteID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, nil)
	if err != nil {
		return err
	}
	if err := c.do(c.control, req, nil); err != nil {
		return fmt.Errorf("complete recording: %w", err)
	}
	return nil
}

// ListRecordings returns all cloud sessions for a device, most recent
// first per the backend's ordering.
func (c *Client) ListRecordings(ctx context.Context, deviceID string) ([]models.CloudSession, error) {
	u := c.baseURL + "/api/recordings"
	if deviceID != "" {
		u += "?device_id=" + url.QueryEscape(deviceID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var sessions []models.CloudSession
	if err := c.do(c.control, req, &sessions); err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return sessions, nil
}

// Health probes service reachability.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}
	if err := c.do(c.control, req, nil); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

func (c *Client) do(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
