package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/qrpay-labs/merchant-console/internal/apperror"
)

// TokenHeader carries the session credential on every device and QR request.
const TokenHeader = "token"

const maxErrorBody = 64 << 10

// CredentialSource supplies the session credential for each request.
type CredentialSource interface {
	Credential() (string, bool)
}

// Client is a thin wrapper over the QR provisioning backend HTTP API.
type Client struct {
	baseURL *url.URL
	creds   CredentialSource
	http    *http.Client
}

// New creates a backend API client.
func New(rawURL string, creds CredentialSource, timeout time.Duration) (*Client, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("base url must include scheme")
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return &Client{
		baseURL: parsed,
		creds:   creds,
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// BaseURL returns the configured backend URL without trailing slash.
func (c *Client) BaseURL() string {
	return strings.TrimRight(c.baseURL.String(), "/")
}

func (c *Client) resolve(p string) string {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, p)
	return u.String()
}

// call issues one request. When authed is set the credential is attached and its absence
// fails locally with an auth error. out may be nil or a *json.RawMessage.
func (c *Client) call(ctx context.Context, method, p string, authed bool, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(p), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if err := c.decorate(req); err != nil {
			return err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.Network(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		detail := parseDetail(raw)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return apperror.Auth(resp.StatusCode, detail)
		}
		return apperror.Server(resp.StatusCode, detail)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	// raw callers accept any body, including an empty one
	if raw, ok := out.(*json.RawMessage); ok {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperror.Network(err)
		}
		*raw = bytes.TrimSpace(b)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Network(fmt.Errorf("decode %s %s response: %w", method, p, err))
	}
	return nil
}

func (c *Client) decorate(req *http.Request) error {
	if c.creds == nil {
		return apperror.Auth(0, "Not authenticated.")
	}
	token, ok := c.creds.Credential()
	if !ok {
		return apperror.Auth(0, "Not authenticated.")
	}
	req.Header.Set(TokenHeader, token)
	return nil
}

// parseDetail extracts the backend's "detail" message. A string detail is used verbatim;
// a list of validation entries is joined by their "msg" fields. Any other shape yields "".
func parseDetail(raw []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var entries []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &entries); err != nil {
		return ""
	}
	msgs := make([]string, 0, len(entries))
	for _, e := range entries {
		if m := strings.TrimSpace(e.Msg); m != "" {
			msgs = append(msgs, m)
		}
	}
	return strings.Join(msgs, "; ")
}
