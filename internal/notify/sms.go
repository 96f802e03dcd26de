// Package notify sends absence text messages to student contacts through a
// Twilio-compatible SMS gateway.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"classwatch/internal/attendance"
)

// SMSClient calls the gateway's Messages REST endpoint with basic auth.
type SMSClient struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string
	HTTP       *http.Client
}

// New creates an SMS client.
func New(accountSID, authToken, fromNumber, baseURL string) *SMSClient {
	return &SMSClient{
		AccountSID: accountSID,
		AuthToken:  authToken,
		FromNumber: fromNumber,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTP:       &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether the gateway credentials are present.
func (c *SMSClient) Configured() bool {
	return c != nil && c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// Send delivers one text message.
func (c *SMSClient) Send(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.FromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.BaseURL, c.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.AccountSID, c.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sms gateway error %s: %s", resp.Status, string(respBody))
	}
	return nil
}

// AbsenceMessage renders the text sent to a student's contact.
func AbsenceMessage(p attendance.Person) string {
	return fmt.Sprintf(
		"Dear guardian, student %s %s (%s) was marked absent in today's class. Please note the absence has to be justified.",
		p.FirstName, p.LastName, p.Code,
	)
}
