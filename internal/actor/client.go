package actor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/imrishuroy/leadflow/internal/logging"
)

// ErrRunRejected is returned when the actor API answers with a non-2xx status.
var ErrRunRejected = errors.New("actor run rejected")

// RunInput is the input document the scraping actor expects.
type RunInput struct {
	URL          string `json:"url"`
	TotalRecords int    `json:"totalRecords"`
	FileName     string `json:"fileName"`
	Email        string `json:"email"`
	CleanOutput  bool   `json:"cleanOutput"`
}

type runResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// Client starts actor runs over the actor platform's REST API.
// It never waits for a run to finish.
type Client struct {
	baseURL    string
	actorID    string
	token      string
	httpClient *http.Client
}

// NewClient returns a Client. timeout bounds a single start call; the
// platform may queue the request for a while before answering.
func NewClient(baseURL, actorID, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		actorID:    actorID,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Start launches one run and returns its run id. The id is empty when the
// platform accepted the run without a readable response body.
func (c *Client) Start(ctx context.Context, in RunInput) (string, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal run input: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v2/acts/%s/runs", c.baseURL, url.PathEscape(c.actorID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d: %s", ErrRunRejected, resp.StatusCode, bytes.TrimSpace(raw))
	}

	// A 2xx means the run was accepted; an unreadable body must not cause a second start.
	var out runResponse
	if readErr != nil {
		logging.Logger.WithError(readErr).Warn("actor accepted run but response body could not be read")
		return "", nil
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.Data.ID == "" {
		logging.Logger.WithError(err).WithField("body", string(bytes.TrimSpace(raw))).
			Warn("actor accepted run but response has no run id")
		return "", nil
	}
	return out.Data.ID, nil
}
