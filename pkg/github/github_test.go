package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type recorder struct {
	mu       sync.Mutex
	requests []string
}

func (r *recorder) add(req string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests = append(r.requests, req)
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.requests) == 0 {
		return ""
	}

	return r.requests[len(r.requests)-1]
}

func newTestServer(t *testing.T) (*httptest.Server, *recorder) {
	t.Helper()

	var (
		srv      *httptest.Server
		requests = &recorder{}
	)

	mux := http.NewServeMux()

	mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		requests.add(r.URL.Path)
		fmt.Fprint(w, `{"resources":{"core":{"limit":60,"remaining":55,"reset":1700000000}}}`)
	})

	mux.HandleFunc("/repos/ringer/ringer-oapi/contents/openapi", func(w http.ResponseWriter, r *http.Request) {
		requests.add(r.URL.Path + "?" + r.URL.RawQuery)

		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)

			return
		}

		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "4321")
		w.Header().Set("X-RateLimit-Reset", "1700000000")
		fmt.Fprintf(w, `[
			{"type":"dir","name":"ringer","path":"openapi/ringer","sha":"abc"},
			{"type":"file","name":"README.md","path":"openapi/README.md","sha":"def","size":12,
			 "download_url":"%s/raw/openapi/README.md"}
		]`, srv.URL)
	})

	mux.HandleFunc("/repos/ringer/ringer-oapi/contents/openapi/README.md", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"type":"file","name":"README.md","path":"openapi/README.md","content":""}`)
	})

	mux.HandleFunc("/raw/openapi/README.md", func(w http.ResponseWriter, r *http.Request) {
		requests.add(r.URL.Path)
		fmt.Fprint(w, "# OpenAPI specs")
	})

	mux.HandleFunc("/raw/missing.yaml", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, requests
}

func startClient(t *testing.T, baseURL, token string) Client {
	t.Helper()

	log, _ := logtest.NewNullLogger()

	c := NewClient(log, token, WithBaseURL(baseURL))
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	t.Cleanup(func() { _ = c.Stop() })

	return c
}

func TestStartReadsRateLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	c := startClient(t, srv.URL, "")

	if got := c.RateLimitRemaining(); got != 55 {
		t.Errorf("remaining = %d, want 55", got)
	}

	if got := c.RateLimitReset().Unix(); got != 1700000000 {
		t.Errorf("reset = %d", got)
	}
}

func TestListContents(t *testing.T) {
	srv, requests := newTestServer(t)

	c := startClient(t, srv.URL, "tok")

	entries, err := c.ListContents(context.Background(), "ringer", "ringer-oapi", "openapi", "main")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	want := []*ContentEntry{
		{Type: "dir", Name: "ringer", Path: "openapi/ringer", SHA: "abc"},
		{
			Type:        "file",
			Name:        "README.md",
			Path:        "openapi/README.md",
			SHA:         "def",
			Size:        12,
			DownloadURL: srv.URL + "/raw/openapi/README.md",
		},
	}

	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	if !entries[0].IsDir() || !entries[1].IsFile() {
		t.Errorf("unexpected entry kinds")
	}

	if got := requests.last(); got != "/repos/ringer/ringer-oapi/contents/openapi?ref=main" {
		t.Errorf("request = %q", got)
	}

	if got := c.RateLimitRemaining(); got != 4321 {
		t.Errorf("remaining = %d, want 4321 from response headers", got)
	}
}

func TestListContentsUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t)

	c := startClient(t, srv.URL, "")

	if _, err := c.ListContents(context.Background(), "ringer", "ringer-oapi", "openapi", "main"); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestListContentsOfFile(t *testing.T) {
	srv, _ := newTestServer(t)

	c := startClient(t, srv.URL, "tok")

	_, err := c.ListContents(context.Background(), "ringer", "ringer-oapi", "openapi/README.md", "main")
	if !errors.Is(err, ErrNotDirectory) {
		t.Fatalf("error = %v, want ErrNotDirectory", err)
	}
}

func TestDownload(t *testing.T) {
	srv, _ := newTestServer(t)

	c := startClient(t, srv.URL, "tok")

	var buf bytes.Buffer

	n, err := c.Download(context.Background(), srv.URL+"/raw/openapi/README.md", &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}

	if buf.String() != "# OpenAPI specs" || n != int64(buf.Len()) {
		t.Errorf("body = %q, n = %d", buf.String(), n)
	}

	if _, err := c.Download(context.Background(), srv.URL+"/raw/missing.yaml", &buf); err == nil {
		t.Error("expected error for 404 download")
	}

	if _, err := c.Download(context.Background(), "", &buf); err == nil {
		t.Error("expected error for empty url")
	}
}
