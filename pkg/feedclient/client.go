// Package feedclient handles authentication against the market-data
// feed gateway. Login requires the client id, password and a TOTP code
// generated from the shared secret; the gateway returns a short-lived
// feed token that the WebSocket client presents on its handshake.
//
// Usage:
//
//	fc := feedclient.New(feedclient.Config{
//	    BaseURL:    "https://feed.example.com",
//	    APIKey:     "your_api_key",
//	    ClientID:   "CLIENT01",
//	    Password:   "secret",
//	    TOTPSecret: "JBSWY3DPEHPK3PXP",
//	})
//	sess, err := fc.GenerateSession(ctx)
//	if err != nil { log.Fatal(err) }
//	fmt.Println("feed token:", sess.FeedToken)
package feedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

var routes = map[string]string{
	"auth.login":   "/v1/auth/login",
	"auth.refresh": "/v1/auth/refresh",
	"auth.logout":  "/v1/auth/logout",
}

// Config holds feed gateway connection settings.
type Config struct {
	BaseURL    string
	APIKey     string
	ClientID   string
	Password   string
	TOTPSecret string

	Timeout time.Duration // default: 7s
	Debug   bool
}

// Session is the token set returned by a successful login.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	FeedToken    string `json:"feed_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Client is the feed gateway auth client.
type Client struct {
	cfg        Config
	httpClient *http.Client

	accessToken  string
	refreshToken string
	feedToken    string

	// SessionExpiryHook is called when the gateway rejects a request
	// with 401/403 after a session was established.
	SessionExpiryHook func()
}

// New creates a feed gateway client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// FeedToken returns the current feed token, empty before login.
func (c *Client) FeedToken() string { return c.feedToken }

// GenerateSession logs in with a freshly generated TOTP code and
// stores the returned token set.
func (c *Client) GenerateSession(ctx context.Context) (Session, error) {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return Session{}, fmt.Errorf("feedclient: generate totp: %w", err)
	}

	var sess Session
	err = c.doRequest(ctx, http.MethodPost, "auth.login", map[string]string{
		"client_id": c.cfg.ClientID,
		"password":  c.cfg.Password,
		"totp":      code,
	}, &sess)
	if err != nil {
		return Session{}, fmt.Errorf("feedclient: login: %w", err)
	}
	if sess.FeedToken == "" {
		return Session{}, fmt.Errorf("feedclient: login response missing feed token")
	}

	c.accessToken = sess.AccessToken
	c.refreshToken = sess.RefreshToken
	c.feedToken = sess.FeedToken
	return sess, nil
}

// RenewSession exchanges the refresh token for a fresh token set.
func (c *Client) RenewSession(ctx context.Context) (Session, error) {
	if c.refreshToken == "" {
		return Session{}, fmt.Errorf("feedclient: no refresh token, login first")
	}

	var sess Session
	err := c.doRequest(ctx, http.MethodPost, "auth.refresh", map[string]string{
		"refresh_token": c.refreshToken,
	}, &sess)
	if err != nil {
		return Session{}, fmt.Errorf("feedclient: refresh: %w", err)
	}

	c.accessToken = sess.AccessToken
	if sess.RefreshToken != "" {
		c.refreshToken = sess.RefreshToken
	}
	if sess.FeedToken != "" {
		c.feedToken = sess.FeedToken
	}
	return sess, nil
}

// TerminateSession logs out and clears stored tokens.
func (c *Client) TerminateSession(ctx context.Context) error {
	err := c.doRequest(ctx, http.MethodPost, "auth.logout", map[string]string{
		"client_id": c.cfg.ClientID,
	}, nil)
	c.accessToken = ""
	c.refreshToken = ""
	c.feedToken = ""
	return err
}

func (c *Client) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-API-Key", c.cfg.APIKey)
	if c.accessToken != "" {
		h.Set("Authorization", "Bearer "+c.accessToken)
	}
	return h
}

// apiError is the gateway's error envelope.
type apiError struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

func (c *Client) doRequest(ctx context.Context, method, route string, params map[string]string, out any) error {
	uri, ok := routes[route]
	if !ok {
		return fmt.Errorf("unknown route: %s", route)
	}
	reqURL := c.cfg.BaseURL + uri

	body, _ := json.Marshal(params)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header = c.requestHeaders()

	if c.cfg.Debug {
		log.Printf("[feedclient] request: %s %s", method, reqURL)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if c.cfg.Debug {
		log.Printf("[feedclient] response: code=%d body=%s", resp.StatusCode, raw)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if c.accessToken != "" && c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.ErrorType != "" {
			return fmt.Errorf("%s: %s", apiErr.ErrorType, apiErr.Message)
		}
		return fmt.Errorf("request rejected: status=%d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("couldn't parse JSON response: %w", err)
		}
	}
	return nil
}
