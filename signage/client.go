package signage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lumenview/marquee/models"
	"github.com/lumenview/marquee/utils"
)

// ErrUnregistered is returned when the server answers 404 to a checkin,
// meaning this device ID has not been registered in the dashboard yet.
// Callers treat it as recoverable but report it distinctly so an operator
// can tell "forgot to register" apart from "server is down".
var ErrUnregistered = errors.New("device is not registered with the server")

const (
	requestTimeout  = 10 * time.Second
	downloadTimeout = 5 * time.Minute
)

// Client talks to the signage server's device API. All requests carry the
// agent user agent and a finite timeout; nothing here retries on its own,
// the sync loop owns retry cadence.
type Client struct {
	baseURL  string
	deviceID string
	http     *http.Client
	download *http.Client
}

func New(baseURL, deviceID string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		http:     utils.NewHTTPClient(requestTimeout),
		download: utils.NewHTTPClient(downloadTimeout),
	}
}

// Checkin reports device status and returns the server's view of what the
// device should be doing, along with any pending command.
func (c *Client) Checkin(ctx context.Context, report models.CheckinRequest) (models.CheckinResponse, error) {
	response := models.CheckinResponse{}

	payload, err := json.Marshal(report)
	if err != nil {
		return response, err
	}

	url := fmt.Sprintf("%s/api/devices/%s/checkin", c.baseURL, c.deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return response, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return response, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return response, ErrUnregistered
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return response, fmt.Errorf("checkin failed with status %d", res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return response, fmt.Errorf("failed to parse checkin response: %w", err)
	}
	return response, nil
}

// FetchAssignment retrieves the full playlist or single media assignment.
func (c *Client) FetchAssignment(ctx context.Context) (models.Assignment, error) {
	assignment := models.Assignment{}

	url := fmt.Sprintf("%s/api/devices/%s/playlist", c.baseURL, c.deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return assignment, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return assignment, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return assignment, ErrUnregistered
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return assignment, fmt.Errorf("assignment fetch failed with status %d", res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(&assignment); err != nil {
		return assignment, fmt.Errorf("failed to parse assignment: %w", err)
	}
	return assignment, nil
}

// DownloadMedia streams one media file into w and returns the bytes written.
// Relative media URLs are resolved against the server base URL.
func (c *Client) DownloadMedia(ctx context.Context, media models.MediaDescriptor, w io.Writer) (int64, error) {
	url := media.URL
	if url == "" {
		url = fmt.Sprintf("%s/media/download/%s", c.baseURL, media.Filename)
	} else if strings.HasPrefix(url, "/") {
		url = c.baseURL + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	res, err := c.download.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return 0, fmt.Errorf("download of %s failed with status %d", media.Filename, res.StatusCode)
	}

	return io.Copy(w, res.Body)
}

// SendLogs ships a batch of buffered device logs upstream.
func (c *Client) SendLogs(ctx context.Context, logs []models.DeviceLog) error {
	if len(logs) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string][]models.DeviceLog{"logs": logs})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/devices/%s/logs", c.baseURL, c.deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("log shipment failed with status %d", res.StatusCode)
	}
	return nil
}

// DownloadUpdate streams the latest client binary into w.
func (c *Client) DownloadUpdate(ctx context.Context, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/download/client-agent", nil)
	if err != nil {
		return err
	}

	res, err := c.download.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("update download failed with status %d", res.StatusCode)
	}

	_, err = io.Copy(w, res.Body)
	return err
}

// FetchUpdateSignature returns the detached signature published next to the
// client binary, in "sha256=<hex>" form.
func (c *Client) FetchUpdateSignature(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/download/client-agent.sig", nil)
	if err != nil {
		return "", err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", fmt.Errorf("signature fetch failed with status %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
