package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/incentives-backend/pkg/config"
	"github.com/angelmondragon/incentives-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

// jobLabel tags every job so warehouse cost can be attributed to settlement.
const jobLabel = "incentives-settlement"

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errViewRequired         = errors.New("bigquery user points view is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
	errEmptyStatement       = errors.New("bigquery statement is required")
)

// Client is a thin wrapper over the BigQuery SDK bound to the incentives dataset and its
// monthly user points view.
type Client struct {
	client    *bigquery.Client
	dataset   *bigquery.Dataset
	projectID string
	view      string
	location  string
	maxBytes  int64
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	view := strings.TrimSpace(cfg.UserPointsView)
	if view == "" {
		return nil, errViewRequired
	}

	bqClient, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	client := &Client{
		client:    bqClient,
		dataset:   bqClient.Dataset(datasetID),
		projectID: projectID,
		view:      view,
		location:  strings.TrimSpace(cfg.Location),
		maxBytes:  cfg.MaxBytesBilled,
	}
	if err := client.Ping(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": datasetID, "view": view}), "bigquery client initialized")
	}
	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

// Ping checks that the dataset and the user points view are readable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return describeMissing(err, "dataset", c.dataset.DatasetID)
	}
	if _, err := c.dataset.Table(c.view).Metadata(ctx); err != nil {
		return describeMissing(err, "view", c.view)
	}
	return nil
}

// Query runs sql and returns the row iterator.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	q, err := c.prepare(sql, params)
	if err != nil {
		return nil, err
	}
	return q.Read(ctx)
}

// Exec runs a statement that returns no rows, such as EXPORT DATA, and waits for the job.
func (c *Client) Exec(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	q, err := c.prepare(sql, params)
	if err != nil {
		return err
	}
	job, err := q.Run(ctx)
	if err != nil {
		return err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job %s: %w", job.ID(), err)
	}
	return status.Err()
}

func (c *Client) prepare(sql string, params []bigquery.QueryParameter) (*bigquery.Query, error) {
	if c == nil || c.client == nil {
		return nil, errClientNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return nil, errEmptyStatement
	}
	q := c.client.Query(sql)
	q.Parameters = params
	q.Labels = map[string]string{"workload": jobLabel}
	if c.location != "" {
		q.Location = c.location
	}
	if c.maxBytes > 0 {
		q.MaxBytesBilled = c.maxBytes
	}
	return q, nil
}

// TableRef returns the backtick-quoted fully qualified name of a table in the dataset.
func (c *Client) TableRef(table string) string {
	return tableRef(c.projectID, c.dataset.DatasetID, table)
}

func tableRef(projectID, dataset, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", strings.TrimSpace(projectID), strings.TrimSpace(dataset), strings.TrimSpace(table))
}

func (c *Client) UserPointsTable() string {
	return c.view
}

// IsUnavailable reports whether err is a timeout, throttling or server-side failure.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr == nil {
		return false
	}
	if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
		return true
	}
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "backendError", "rateLimitExceeded", "jobBackendError":
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func describeMissing(err error, kind, name string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}
