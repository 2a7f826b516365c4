package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v60/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// ErrNotDirectory is returned by ListContents when the path is a file.
var ErrNotDirectory = errors.New("path is not a directory")

// Client defines the interface for the GitHub API operations used by sync.
type Client interface {
	Start(ctx context.Context) error
	Stop() error

	// Repository contents.
	ListContents(ctx context.Context, owner, repo, path, ref string) ([]*ContentEntry, error)
	Download(ctx context.Context, downloadURL string, w io.Writer) (int64, error)

	// Rate limiting.
	RateLimitRemaining() int
	RateLimitReset() time.Time
}

// ContentEntry is one item of a repository directory listing.
type ContentEntry struct {
	Type        string // file, dir, symlink, submodule
	Name        string
	Path        string
	SHA         string
	Size        int
	DownloadURL string
}

// IsDir reports whether the entry is a directory.
func (e *ContentEntry) IsDir() bool {
	return e.Type == "dir"
}

// IsFile reports whether the entry is a regular file.
func (e *ContentEntry) IsFile() bool {
	return e.Type == "file"
}

// Option configures a client.
type Option func(*client)

// WithBaseURL points the client at a different API root, such as a GitHub
// Enterprise server or a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the underlying HTTP client used when no token is set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// client implements Client.
type client struct {
	log           logrus.FieldLogger
	token         string
	baseURL       string
	httpClient    *http.Client
	gh            *github.Client
	mu            sync.RWMutex
	rateRemaining int
	rateReset     time.Time
}

// Ensure client implements Client.
var _ Client = (*client)(nil)

// NewClient creates a new GitHub client. An empty token makes
// unauthenticated requests.
func NewClient(log logrus.FieldLogger, token string, opts ...Option) Client {
	c := &client{
		log:   log.WithField("component", "github"),
		token: token,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start initializes the GitHub client and reads the current rate limit.
func (c *client) Start(ctx context.Context) error {
	c.log.WithField("authenticated", c.token != "").Info("Initializing GitHub client")

	hc := c.httpClient

	if c.token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token})

		if hc != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
		}

		hc = oauth2.NewClient(ctx, ts)
	}

	c.gh = github.NewClient(hc)

	if c.baseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(c.baseURL, "/") + "/")
		if err != nil {
			return fmt.Errorf("parsing GitHub API URL: %w", err)
		}

		c.gh.BaseURL = base
	}

	rate, resp, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		return fmt.Errorf("getting GitHub rate limit: %w", err)
	}

	c.updateRateLimit(resp)

	if core := rate.GetCore(); core != nil {
		c.mu.Lock()
		c.rateRemaining = core.Remaining
		c.rateReset = core.Reset.Time
		c.mu.Unlock()

		c.log.WithFields(logrus.Fields{
			"rate_remaining": core.Remaining,
			"rate_limit":     core.Limit,
			"rate_reset":     core.Reset.Time,
		}).Info("GitHub client initialized")
	}

	return nil
}

// Stop shuts down the GitHub client.
func (c *client) Stop() error {
	c.log.Info("Stopping GitHub client")

	return nil
}

// updateRateLimit updates rate limit info from response headers. Responses
// without rate headers, such as raw file downloads, are ignored.
func (c *client) updateRateLimit(resp *github.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rateRemaining = resp.Rate.Remaining
	c.rateReset = resp.Rate.Reset.Time
}

// RateLimitRemaining returns the remaining API calls.
func (c *client) RateLimitRemaining() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.rateRemaining
}

// RateLimitReset returns when the rate limit resets.
func (c *client) RateLimitReset() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.rateReset
}

// ListContents lists a directory of a repository at the given ref.
func (c *client) ListContents(ctx context.Context, owner, repo, path, ref string) ([]*ContentEntry, error) {
	c.log.WithFields(logrus.Fields{
		"owner": owner,
		"repo":  repo,
		"path":  path,
		"ref":   ref,
	}).Debug("Listing repository contents")

	opts := &github.RepositoryContentGetOptions{Ref: ref}

	file, dir, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, opts)
	c.updateRateLimit(resp)

	if err != nil {
		return nil, fmt.Errorf("listing contents of %s: %w", path, err)
	}

	if file != nil {
		return nil, fmt.Errorf("listing contents of %s: %w", path, ErrNotDirectory)
	}

	entries := make([]*ContentEntry, 0, len(dir))

	for _, item := range dir {
		entries = append(entries, &ContentEntry{
			Type:        item.GetType(),
			Name:        item.GetName(),
			Path:        item.GetPath(),
			SHA:         item.GetSHA(),
			Size:        item.GetSize(),
			DownloadURL: item.GetDownloadURL(),
		})
	}

	c.log.WithFields(logrus.Fields{
		"path":  path,
		"count": len(entries),
	}).Debug("Listed repository contents")

	return entries, nil
}

// Download fetches a file by its download URL and writes the body to w.
// Non-2xx responses are errors.
func (c *client) Download(ctx context.Context, downloadURL string, w io.Writer) (int64, error) {
	if downloadURL == "" {
		return 0, errors.New("empty download url")
	}

	req, err := c.gh.NewRequest(http.MethodGet, downloadURL, nil)
	if err != nil {
		return 0, fmt.Errorf("creating download request: %w", err)
	}

	// Raw content, not the API's JSON media type.
	req.Header.Set("Accept", "*/*")

	cw := &countingWriter{w: w}

	resp, err := c.gh.Do(ctx, req, cw)
	c.updateRateLimit(resp)

	if err != nil {
		return cw.n, fmt.Errorf("downloading %s: %w", downloadURL, err)
	}

	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)

	return n, err
}
