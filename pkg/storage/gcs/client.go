package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/incentives-backend/pkg/config"
	"github.com/angelmondragon/incentives-backend/pkg/logger"
)

const (
	storageScope   = "https://www.googleapis.com/auth/devstorage.read_write"
	pingTimeout    = 5 * time.Second
	requestTimeout = 60 * time.Second

	defaultAPIBase     = "https://storage.googleapis.com"
	defaultBrowserBase = "https://storage.cloud.google.com"
)

// Client talks to the GCS JSON API. It only uploads settlement artifacts and names
// export destinations, so the full storage SDK is not pulled in.
type Client struct {
	httpClient    *http.Client
	defaultBucket string
	apiBase       string
	browserBase   string
}

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	creds, err := credentials(ctx, gcp)
	if err != nil {
		return nil, fmt.Errorf("gcs credentials: %w", err)
	}
	httpClient := oauth2.NewClient(context.Background(), creds.TokenSource)
	httpClient.Timeout = requestTimeout

	client := newClient(httpClient, cfg.BucketName)
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.BucketName), "gcs client initialized")
	}
	return client, nil
}

func newClient(httpClient *http.Client, bucket string) *Client {
	return &Client{
		httpClient:    httpClient,
		defaultBucket: bucket,
		apiBase:       defaultAPIBase,
		browserBase:   defaultBrowserBase,
	}
}

// credentials prefers inline JSON, then a key file, then Application Default Credentials.
func credentials(ctx context.Context, gcp config.GCPConfig) (*google.Credentials, error) {
	switch {
	case gcp.CredentialsJSON != "":
		return google.CredentialsFromJSON(ctx, []byte(gcp.CredentialsJSON), storageScope)
	case gcp.ApplicationCredentials != "":
		raw, err := os.ReadFile(gcp.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		return google.CredentialsFromJSON(ctx, raw, storageScope)
	default:
		return google.FindDefaultCredentials(ctx, storageScope)
	}
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.defaultBucket
}

func (c *Client) Close() error {
	if c != nil && c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

// Ping reads the default bucket's metadata.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.httpClient == nil {
		return errors.New("gcs client not initialized")
	}
	if c.defaultBucket == "" {
		return errors.New("gcs bucket not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/storage/v1/b/%s?fields=name", c.api(), url.PathEscape(c.defaultBucket))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, "bucket "+c.defaultBucket)
}

// UploadObject stores body under object in bucket (the default bucket when empty) using a
// simple media upload and returns the browser URL of the stored object.
func (c *Client) UploadObject(ctx context.Context, bucket, object, contentType string, body io.Reader) (string, error) {
	if c == nil || c.httpClient == nil {
		return "", errors.New("gcs client not initialized")
	}
	if bucket == "" {
		bucket = c.defaultBucket
	}
	if bucket == "" {
		return "", errors.New("gcs bucket not configured")
	}
	object = strings.TrimLeft(strings.TrimSpace(object), "/")
	if object == "" {
		return "", errors.New("gcs object name is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	q := url.Values{}
	q.Set("uploadType", "media")
	q.Set("name", object)
	u := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?%s", c.api(), url.PathEscape(bucket), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	if err := c.do(req, "upload "+object); err != nil {
		return "", err
	}
	return c.ObjectURL(bucket, object), nil
}

func (c *Client) do(req *http.Request, what string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gcs %s: %w", what, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := googleapi.CheckResponse(resp); err != nil {
		return fmt.Errorf("gcs %s: %w", what, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// ObjectURL builds the authenticated-browser URL for an object.
func (c *Client) ObjectURL(bucket, object string) string {
	base := defaultBrowserBase
	if c != nil && c.browserBase != "" {
		base = c.browserBase
	}
	if bucket == "" && c != nil {
		bucket = c.defaultBucket
	}
	segments := strings.Split(strings.TrimLeft(object, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/%s/%s", base, url.PathEscape(bucket), strings.Join(segments, "/"))
}

// GSURI returns the gs:// form used by BigQuery extract jobs.
func (c *Client) GSURI(bucket, object string) string {
	if bucket == "" && c != nil {
		bucket = c.defaultBucket
	}
	return fmt.Sprintf("gs://%s/%s", bucket, strings.TrimLeft(object, "/"))
}

func (c *Client) api() string {
	if c.apiBase == "" {
		return defaultAPIBase
	}
	return c.apiBase
}
