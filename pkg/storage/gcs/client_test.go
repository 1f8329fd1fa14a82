package gcs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/incentives-backend/pkg/config"
)

// testClient authenticates with a static token against srv.
func testClient(srv *httptest.Server, bucket string) *Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, srv.Client())
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}))
	c := newClient(httpClient, bucket)
	c.apiBase = srv.URL
	return c
}

func TestUploadObjectSendsMediaUpload(t *testing.T) {
	t.Parallel()

	var gotPath, gotQuery, gotAuth, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"name":"settlements/run.csv"}`))
	}))
	defer srv.Close()

	client := testClient(srv, "reports")
	link, err := client.UploadObject(context.Background(), "", "/settlements/2026/03/run.csv", "text/csv", strings.NewReader("user_id,value\n"))
	if err != nil {
		t.Fatalf("UploadObject returned error: %v", err)
	}

	if gotPath != "/upload/storage/v1/b/reports/o" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if !strings.Contains(gotQuery, "uploadType=media") || !strings.Contains(gotQuery, "name=settlements%2F2026%2F03%2Frun.csv") {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotType != "text/csv" {
		t.Fatalf("unexpected content type %q", gotType)
	}
	if gotBody != "user_id,value\n" {
		t.Fatalf("unexpected body %q", gotBody)
	}
	if link != "https://storage.cloud.google.com/reports/settlements/2026/03/run.csv" {
		t.Fatalf("unexpected link %q", link)
	}
}

func TestUploadObjectSurfacesAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv, "reports").UploadObject(context.Background(), "", "run.csv", "text/csv", strings.NewReader("x"))
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected googleapi error, got %v", err)
	}
	if apiErr.Code != http.StatusForbidden || apiErr.Message != "denied" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestPingReadsBucket(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.URL.Path != "/storage/v1/b/reports" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"name":"reports"}`))
	}))
	defer srv.Close()

	if err := testClient(srv, "reports").Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if gotPath != "/storage/v1/b/reports" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if err := testClient(srv, "missing").Ping(context.Background()); err == nil {
		t.Fatal("expected missing bucket to fail ping")
	}
}

func TestUploadObjectValidation(t *testing.T) {
	t.Parallel()

	var nilClient *Client
	if _, err := nilClient.UploadObject(context.Background(), "b", "o", "", strings.NewReader("")); err == nil {
		t.Fatal("expected nil client error")
	}

	client := newClient(http.DefaultClient, "")
	if _, err := client.UploadObject(context.Background(), "", "o", "", strings.NewReader("")); err == nil {
		t.Fatal("expected missing bucket error")
	}
	client.defaultBucket = "reports"
	if _, err := client.UploadObject(context.Background(), "", " ", "", strings.NewReader("")); err == nil {
		t.Fatal("expected missing object error")
	}
}

func TestObjectURLAndGSURI(t *testing.T) {
	t.Parallel()

	client := &Client{defaultBucket: "reports"}
	if got := client.ObjectURL("", "a b/c.csv"); got != "https://storage.cloud.google.com/reports/a%20b/c.csv" {
		t.Fatalf("unexpected object url %q", got)
	}
	if got := client.GSURI("exports", "/users/x-*.csv"); got != "gs://exports/users/x-*.csv" {
		t.Fatalf("unexpected gs uri %q", got)
	}
}

func TestCredentialsRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	if _, err := credentials(context.Background(), config.GCPConfig{CredentialsJSON: "{not json"}); err == nil {
		t.Fatal("expected malformed credentials to fail")
	}
	if _, err := credentials(context.Background(), config.GCPConfig{ApplicationCredentials: "/nonexistent/key.json"}); err == nil {
		t.Fatal("expected missing key file to fail")
	}
}
