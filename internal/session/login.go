// Package session performs the one-shot visitor login against the widget backend.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Credentials are the opaque values the widget needs to resume a visitor session.
type Credentials struct {
	SessionID string
	Password  string
	Token     string
}

// Client calls the login endpoint.
type Client struct {
	loginURL  string
	clientID  int
	userAgent string
	http      *http.Client
	logger    *zap.Logger
}

// NewClient creates a login client for the given endpoint and widget id.
func NewClient(loginURL string, clientID int, userAgent string, logger *zap.Logger) *Client {
	return &Client{
		loginURL:  loginURL,
		clientID:  clientID,
		userAgent: userAgent,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.Named("session"),
	}
}

// loginResponse mirrors the fields we need from the endpoint's JSON body.
type loginResponse struct {
	SessionID *string `json:"sessionId"`
	Pass      *string `json:"pass"`
	Token     *string `json:"token"`
}

// Login validates the identity, then makes a single request. There is no retry.
func (c *Client) Login(ctx context.Context, id Identity) (Credentials, error) {
	if err := id.Validate(); err != nil {
		return Credentials{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(id), nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to build login request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug("Sending login request", zap.Stringer("mode", id.Mode), zap.Int("c2cid", c.clientID))

	resp, err := c.http.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to call login endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Credentials{}, &LoginFailedError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read login response: %w", err)
	}

	return parseCredentials(body)
}

func (c *Client) requestURL(id Identity) string {
	params := url.Values{}
	params.Set("login", "true")
	params.Set("c2cid", strconv.Itoa(c.clientID))
	if id.Mode.RequiresName() {
		params.Set("displayname", id.Name)
	}
	if id.Mode.RequiresEmail() {
		params.Set("email", id.Email)
	}
	return c.loginURL + "?" + params.Encode()
}

func parseCredentials(body []byte) (Credentials, error) {
	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return Credentials{}, &MalformedResponseError{Err: err}
	}

	var missing []string
	if lr.SessionID == nil {
		missing = append(missing, "sessionId")
	}
	if lr.Pass == nil {
		missing = append(missing, "pass")
	}
	if lr.Token == nil {
		missing = append(missing, "token")
	}
	if len(missing) > 0 {
		return Credentials{}, &MalformedResponseError{Missing: missing}
	}

	return Credentials{
		SessionID: *lr.SessionID,
		Password:  *lr.Pass,
		Token:     *lr.Token,
	}, nil
}
