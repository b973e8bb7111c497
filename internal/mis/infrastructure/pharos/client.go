package pharos

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

// Credentials authenticate against the AMS API with HTTP Basic auth.
// Token is either "user:password" or, when PreEncoded, the base64 payload.
type Credentials struct {
	Token      string
	PreEncoded bool
}

// HTTPError is returned for any non-200 response.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("pharos: %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Client downloads MIS reports.
type Client struct {
	Credentials Credentials
	HTTP        *http.Client
	SaveDir     string
	Logger      logrus.FieldLogger
}

// NewClient creates a client with the given request timeout.
func NewClient(creds Credentials, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		Credentials: creds,
		HTTP:        &http.Client{Timeout: timeout},
		Logger:      logrus.StandardLogger(),
	}
}

// Fetch downloads one report URL and decodes it into a raw table.
func (c *Client) Fetch(ctx context.Context, rawURL string) (domain.RawTable, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.RawTable{}, eris.Wrap(err, "pharos: build request")
	}
	c.authorize(req)

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return domain.RawTable{}, eris.Wrapf(err, "pharos: GET %s", redact(rawURL))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.RawTable{}, eris.Wrap(err, "pharos: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return domain.RawTable{}, &HTTPError{StatusCode: resp.StatusCode, URL: redact(rawURL), Body: snippet(string(body), 200)}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return domain.RawTable{}, fmt.Errorf("%w: %s (content type %q)", domain.ErrEmptyResponse, redact(rawURL), resp.Header.Get("Content-Type"))
	}

	contentType := resp.Header.Get("Content-Type")
	c.logger().WithFields(logrus.Fields{
		"event":        "pharos_fetch",
		"url":          redact(rawURL),
		"bytes":        len(body),
		"content_type": contentType,
		"elapsed_ms":   time.Since(start).Milliseconds(),
	}).Debug("report downloaded")

	if c.SaveDir != "" {
		if err := c.save(rawURL, contentType, body); err != nil {
			c.logger().WithError(err).WithField("event", "pharos_save_failed").Warn("raw response not saved")
		}
	}

	table, err := Decode(body, contentType)
	if err != nil {
		return domain.RawTable{}, err
	}
	table.Source = rawURL
	return table, nil
}

func (c *Client) authorize(req *http.Request) {
	token := strings.TrimSpace(c.Credentials.Token)
	switch {
	case token == "":
	case c.Credentials.PreEncoded:
		req.Header.Set("Authorization", "Basic "+token)
	case strings.Contains(token, ":"):
		user, pass, _ := strings.Cut(token, ":")
		req.SetBasicAuth(user, pass)
	default:
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(token)))
	}
}

func (c *Client) save(rawURL, contentType string, body []byte) error {
	if err := os.MkdirAll(c.SaveDir, 0o755); err != nil {
		return eris.Wrap(err, "pharos: create save dir")
	}
	path := filepath.Join(c.SaveDir, saveName(rawURL, contentType))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return eris.Wrapf(err, "pharos: write %s", path)
	}
	return nil
}

func (c *Client) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}

// saveName derives a stable file name from the report and date window.
func saveName(rawURL, contentType string) string {
	ext := ".csv"
	if isJSON(contentType) {
		ext = ".json"
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "response" + ext
	}
	q := u.Query()
	parts := []string{q.Get("report_name"), q.Get("settle_since"), q.Get("settle_before")}
	name := strings.Trim(strings.Join(parts, "_"), "_")
	if name == "" {
		name = "response"
	}
	return name + ext
}

func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.User = nil
	return u.String()
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
