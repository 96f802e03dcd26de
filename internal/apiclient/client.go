// Package apiclient is the monitor-side client for the backend api. It
// implements the schedule and roster sources plus all four dispatch sinks.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"classwatch/internal/accounting"
	"classwatch/internal/schedule"
	"classwatch/internal/sighting"
)

// Client talks to the backend api with a device bearer token.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	token string
}

// New creates a client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Register registers the monitor as a device and keeps the issued access
// token for subsequent calls.
func (c *Client) Register(ctx context.Context, deviceID string) error {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/devices/register", map[string]string{"device_id": deviceID}, &out); err != nil {
		return err
	}
	if out.AccessToken == "" {
		return fmt.Errorf("apiclient: register returned no token")
	}
	c.token = out.AccessToken
	return nil
}

// TodaySchedule fetches the room's entries for today.
func (c *Client) TodaySchedule(ctx context.Context, room string) ([]schedule.Entry, error) {
	var out struct {
		Entries []schedule.Entry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/schedule?room="+url.QueryEscape(room), nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Roster fetches everyone enrolled in a session.
func (c *Client) Roster(ctx context.Context, sessionID int64) ([]accounting.RosterMember, error) {
	var out struct {
		Roster []accounting.RosterMember `json:"roster"`
	}
	path := fmt.Sprintf("/v1/roster?session_id=%d", sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Roster, nil
}

// RecordAttendance persists the session's verdicts.
func (c *Client) RecordAttendance(ctx context.Context, sessionID int64, date time.Time, verdicts []accounting.Verdict) error {
	body := map[string]any{
		"date":     date.Format("2006-01-02"),
		"verdicts": verdicts,
	}
	path := fmt.Sprintf("/v1/attendance/%d", sessionID)
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// RecordUnknowns persists the session's unknown-capture references.
func (c *Client) RecordUnknowns(ctx context.Context, sessionID int64, refs []sighting.UnknownRef) error {
	urls := make([]string, 0, len(refs))
	for _, ref := range refs {
		urls = append(urls, ref.ImageURL)
	}
	body := map[string]any{"image_urls": urls}
	path := fmt.Sprintf("/v1/attendance/%d/unknowns", sessionID)
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// SendSessionReport triggers the report email for a closed session.
func (c *Client) SendSessionReport(ctx context.Context, sessionID int64, room string) error {
	path := fmt.Sprintf("/v1/reports/%d?room=%s", sessionID, url.QueryEscape(room))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// NotifyAbsentees triggers absence messages for a closed session.
func (c *Client) NotifyAbsentees(ctx context.Context, sessionID int64) error {
	path := fmt.Sprintf("/v1/notifications/%d", sessionID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("apiclient: %s %s returned %s: %s", method, path, resp.Status, string(respBody))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("apiclient: decode %s response: %w", path, err)
		}
	}
	return nil
}
