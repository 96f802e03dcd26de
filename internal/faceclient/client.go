// Package faceclient talks to the face recognition microservice. The core
// treats it as an oracle: an image either resolves to a known person with a
// role, or it does not.
package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"classwatch/internal/sighting"
)

// IdentifyResult is the oracle's answer for one capture.
type IdentifyResult struct {
	Known      bool
	PersonID   string
	Role       sighting.Role
	Similarity float64
}

// Client calls the face recognition microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. Skip short-circuits every call with a stub match,
// for running without the model service.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // face matching can take time
		},
	}
}

// Identify asks the service to match an uploaded capture against the known
// gallery, optionally narrowed to a candidate list of person ids.
func (c *Client) Identify(ctx context.Context, imageURL string, candidates []string) (*IdentifyResult, error) {
	if c.Skip {
		return &IdentifyResult{
			Known:      true,
			PersonID:   "stub-person",
			Role:       sighting.RoleStudent,
			Similarity: 0.95,
		}, nil
	}
	if imageURL == "" {
		return nil, fmt.Errorf("image url required")
	}

	body, _ := json.Marshal(map[string]any{
		"image_url":  imageURL,
		"candidates": candidates,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/identify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		PersonID   string  `json:"person_id"`
		Role       int     `json:"role"`
		Similarity float64 `json:"similarity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("face service decode failed: %w", err)
	}
	if out.PersonID == "" {
		return &IdentifyResult{Known: false}, nil
	}
	return &IdentifyResult{
		Known:      true,
		PersonID:   out.PersonID,
		Role:       sighting.Role(out.Role),
		Similarity: out.Similarity,
	}, nil
}

// Health checks the face service availability.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}
