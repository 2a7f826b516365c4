package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/bcrypt"

	"github.com/teliax/ringer-docs/pkg/auth"
	"github.com/teliax/ringer-docs/pkg/config"
	"github.com/teliax/ringer-docs/pkg/metrics"
	"github.com/teliax/ringer-docs/pkg/site"
	"github.com/teliax/ringer-docs/pkg/spec"
	"github.com/teliax/ringer-docs/pkg/store"
	"github.com/teliax/ringer-docs/pkg/syncer"
)

const testKey = "test-api-key"

const lookupSpec = `openapi: 3.0.3
info:
  title: Telique API
  version: 1.2.0
servers:
  - url: https://api.ringer.tel
paths:
  /v1/telique/lookup:
    get:
      summary: Lookup a number
      operationId: lookupNumber
      responses:
        "200":
          description: OK
    post:
      summary: Bulk lookup
      responses:
        "200":
          description: OK
`

// fakeScheduler records triggers and returns a canned result.
type fakeScheduler struct {
	mu       sync.Mutex
	run      *store.SyncRun
	err      error
	triggers []bool
	cb       syncer.SyncCallback
}

var _ syncer.Scheduler = (*fakeScheduler)(nil)

func (f *fakeScheduler) Start(context.Context) error { return nil }
func (f *fakeScheduler) Stop() error                 { return nil }

func (f *fakeScheduler) Trigger(_ context.Context, _ store.SyncTrigger, force bool) (*store.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.triggers = append(f.triggers, force)

	return f.run, f.err
}

func (f *fakeScheduler) SetSyncCallback(cb syncer.SyncCallback) { f.cb = cb }
func (f *fakeScheduler) LastRun() *store.SyncRun                { return f.run }
func (f *fakeScheduler) Running() bool                          { return false }
func (f *fakeScheduler) Prune(context.Context) (int64, error)   { return 0, nil }

type testServer struct {
	*server
	store   store.Store
	metrics *metrics.Metrics
}

type testOptions struct {
	scheduler syncer.Scheduler
	rpm       int
	authRPM   int
	specs     map[string]string
}

func newTestServer(t *testing.T, opts testOptions) *testServer {
	t.Helper()

	log, _ := logtest.NewNullLogger()
	ctx := context.Background()

	root := t.TempDir()

	specs := opts.specs
	if specs == nil {
		specs = map[string]string{"ringer/telique.yaml": lookupSpec}
	}

	for name, content := range specs {
		path := filepath.Join(root, "openapi", filepath.FromSlash(name))

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}

		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	st := store.NewSQLiteStore(log, filepath.Join(root, "test.db"))
	if err := st.Start(ctx); err != nil {
		t.Fatalf("start store: %v", err)
	}

	t.Cleanup(func() { _ = st.Stop() })

	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(testKey), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Specs.Dir = filepath.Join(root, "openapi")
	cfg.Auth.APIKeys = []config.APIKey{{Name: "ci", KeyHash: string(hash)}}

	if opts.rpm > 0 {
		cfg.Server.RateLimit.Enabled = true
		cfg.Server.RateLimit.RequestsPerMinute = opts.rpm
	}

	if opts.authRPM != 0 {
		cfg.Server.RateLimit.Auth.RequestsPerMinute = opts.authRPM
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	specStore := spec.NewStore(log, cfg.Specs.Dir)

	siteHandler, err := site.New(log, cfg.Site, specStore, m)
	if err != nil {
		t.Fatal(err)
	}

	srv := NewServer(log, cfg, Deps{
		Specs:     specStore,
		Store:     st,
		Scheduler: opts.scheduler,
		Auth:      auth.NewService(log, cfg.Auth.APIKeys),
		Site:      siteHandler,
		Metrics:   m,
		Gatherer:  reg,
	})

	return &testServer{server: srv.(*server), store: st, metrics: m}
}

func (s *testServer) do(t *testing.T, method, target, key string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}

	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testOptions{scheduler: &fakeScheduler{}})

	rec := s.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	resp := decode[HealthResponse](t, rec)
	if resp.Status != "ok" || resp.Specs != 1 || !resp.Sync.Enabled {
		t.Errorf("unexpected health response: %+v", resp)
	}
}

func TestListSpecs(t *testing.T) {
	s := newTestServer(t, testOptions{specs: map[string]string{
		"ringer/telique.yaml":  lookupSpec,
		"partners/broken.yaml": "openapi: [",
	}})

	rec := s.do(t, http.MethodGet, "/api/v1/specs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	byName := make(map[string]SpecSummary)
	for _, summary := range decode[[]SpecSummary](t, rec) {
		byName[summary.Category+"/"+summary.Name] = summary
	}

	if got := byName["ringer/telique"]; !got.Loadable || got.Title != "Telique API" || got.Version != "1.2.0" {
		t.Errorf("unexpected telique summary: %+v", got)
	}

	if got := byName["partners/broken"]; got.Loadable || got.Title != "broken" {
		t.Errorf("unexpected broken summary: %+v", got)
	}
}

func TestGetSpec(t *testing.T) {
	s := newTestServer(t, testOptions{})

	rec := s.do(t, http.MethodGet, "/api/v1/specs/ringer/telique", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	detail := decode[SpecDetail](t, rec)

	if detail.Info.Title != "Telique API" {
		t.Errorf("expected title, got %q", detail.Info.Title)
	}

	if len(detail.Servers) != 1 || detail.Servers[0].URL != "https://api.ringer.tel" {
		t.Errorf("unexpected servers: %+v", detail.Servers)
	}

	if len(detail.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(detail.Endpoints))
	}

	first := detail.Endpoints[0]
	if first.Method != "get" || first.Slug != "v1-telique-lookup" || first.OperationID != "lookupNumber" {
		t.Errorf("unexpected first endpoint: %+v", first)
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/specs/ringer/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing spec, got %d", rec.Code)
	}
}

func TestValidateSpec(t *testing.T) {
	s := newTestServer(t, testOptions{specs: map[string]string{
		"ringer/telique.yaml": lookupSpec,
		"ringer/loose.yaml":   "paths: {}\n",
	}})

	rec := s.do(t, http.MethodGet, "/api/v1/specs/ringer/telique/validation", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if resp := decode[SpecValidationResponse](t, rec); !resp.Valid || resp.OpenAPI != "3.0.3" {
		t.Errorf("expected valid spec, got %+v", resp)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/specs/ringer/loose/validation", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if resp := decode[SpecValidationResponse](t, rec); resp.Valid || resp.Error == "" {
		t.Errorf("expected invalid spec with error, got %+v", resp)
	}
}

func TestSyncRuns(t *testing.T) {
	s := newTestServer(t, testOptions{})
	ctx := context.Background()

	rec := s.do(t, http.MethodGet, "/api/v1/sync/runs", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %d %q", rec.Code, rec.Body.String())
	}

	run := &store.SyncRun{
		ID:        "run-1",
		Trigger:   store.SyncTriggerCLI,
		Source:    "ringer/ringer-oapi@main:openapi",
		Status:    store.SyncStatusRunning,
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := s.store.CreateSyncRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	if err := s.store.CreateSyncedFile(ctx, &store.SyncedFile{
		ID:        "file-1",
		RunID:     run.ID,
		Category:  "ringer",
		Name:      "telique.yaml",
		CreatedAt: run.StartedAt,
	}); err != nil {
		t.Fatal(err)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/sync/runs?limit=5", "")
	if runs := decode[[]store.SyncRun](t, rec); len(runs) != 1 || runs[0].ID != run.ID {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/sync/runs/run-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if got := decode[store.SyncRun](t, rec); len(got.Files) != 1 || got.Files[0].Name != "telique.yaml" {
		t.Errorf("expected run with its file, got %+v", got)
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/sync/runs/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestTriggerSync(t *testing.T) {
	finished := time.Now().UTC()
	okRun := &store.SyncRun{ID: "run-ok", Status: store.SyncStatusSucceeded, CompletedAt: &finished}
	failedRun := &store.SyncRun{ID: "run-bad", Status: store.SyncStatusFailed, ErrorMessage: "boom"}

	tests := []struct {
		name       string
		scheduler  syncer.Scheduler
		key        string
		target     string
		wantStatus int
		wantAudit  store.AuditAction
	}{
		{
			name:       "missing key",
			scheduler:  &fakeScheduler{run: okRun},
			target:     "/api/v1/sync",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong key",
			scheduler:  &fakeScheduler{run: okRun},
			key:        "nope",
			target:     "/api/v1/sync",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not configured",
			key:        testKey,
			target:     "/api/v1/sync",
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "in progress",
			scheduler:  &fakeScheduler{err: syncer.ErrSyncInProgress},
			key:        testKey,
			target:     "/api/v1/sync",
			wantStatus: http.StatusConflict,
			wantAudit:  store.AuditActionSyncRejected,
		},
		{
			name:       "failed run",
			scheduler:  &fakeScheduler{run: failedRun, err: context.DeadlineExceeded},
			key:        testKey,
			target:     "/api/v1/sync",
			wantStatus: http.StatusBadGateway,
			wantAudit:  store.AuditActionSyncTriggered,
		},
		{
			name:       "success",
			scheduler:  &fakeScheduler{run: okRun},
			key:        testKey,
			target:     "/api/v1/sync?force=true",
			wantStatus: http.StatusOK,
			wantAudit:  store.AuditActionSyncTriggered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testOptions{scheduler: tt.scheduler})

			rec := s.do(t, http.MethodPost, tt.target, tt.key)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}

			entries, total, err := s.store.ListAuditEntries(context.Background(), store.AuditQueryOpts{Limit: 10})
			if err != nil {
				t.Fatal(err)
			}

			if tt.wantAudit == "" {
				if total != 0 {
					t.Errorf("expected no audit entries, got %d", total)
				}

				return
			}

			if len(entries) != 1 || entries[0].Action != tt.wantAudit || entries[0].Actor != "ci" {
				t.Errorf("unexpected audit entries: %+v", entries)
			}
		})
	}
}

func TestTriggerSyncPassesForce(t *testing.T) {
	sched := &fakeScheduler{run: &store.SyncRun{ID: "run-1", Status: store.SyncStatusSucceeded}}
	s := newTestServer(t, testOptions{scheduler: sched})

	s.do(t, http.MethodPost, "/api/v1/sync", testKey)
	s.do(t, http.MethodPost, "/api/v1/sync?force=true", testKey)

	if len(sched.triggers) != 2 || sched.triggers[0] || !sched.triggers[1] {
		t.Errorf("unexpected force flags: %v", sched.triggers)
	}

	if sched.cb == nil {
		t.Error("expected the server to register a sync callback")
	}
}

func TestListAudit(t *testing.T) {
	s := newTestServer(t, testOptions{scheduler: &fakeScheduler{err: syncer.ErrSyncInProgress}})

	s.do(t, http.MethodPost, "/api/v1/sync", testKey)

	if rec := s.do(t, http.MethodGet, "/api/v1/audit", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/audit?action=sync_rejected", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	resp := decode[AuditListResponse](t, rec)
	if resp.Total != 1 || len(resp.Entries) != 1 || resp.Limit != 50 {
		t.Errorf("unexpected audit page: %+v", resp)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/audit?action=sync_triggered", testKey)
	if resp := decode[AuditListResponse](t, rec); resp.Total != 0 || resp.Entries == nil {
		t.Errorf("expected empty non-nil page, got %+v", resp)
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/audit?since=yesterday", testKey); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad since, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, testOptions{rpm: 2})

	for i := 0; i < 2; i++ {
		if rec := s.do(t, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := s.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestAPIKeyRoutesRateLimited(t *testing.T) {
	s := newTestServer(t, testOptions{scheduler: &fakeScheduler{}, authRPM: 2})

	for i := 0; i < 2; i++ {
		if rec := s.do(t, http.MethodPost, "/api/v1/sync", "garbage"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("request %d: expected 401, got %d", i, rec.Code)
		}
	}

	rec := s.do(t, http.MethodPost, "/api/v1/sync", "garbage")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 before the key check, got %d", rec.Code)
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/audit", testKey); rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected audit to share the limit, got %d", rec.Code)
	}

	// Public routes are not affected by the key route limit.
	if rec := s.do(t, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200 on public route, got %d", rec.Code)
	}
}

func TestAPIKeyRateLimitDisabled(t *testing.T) {
	s := newTestServer(t, testOptions{authRPM: -1})

	if s.authRateLimiter != nil {
		t.Fatal("expected no limiter for a negative limit")
	}

	for i := 0; i < 15; i++ {
		if rec := s.do(t, http.MethodGet, "/api/v1/audit", "garbage"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("request %d: expected 401, got %d", i, rec.Code)
		}
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	l := NewIPRateLimiter(60)

	now := time.Now()
	l.now = func() time.Time { return now }

	l.getLimiter("10.0.0.1")

	now = now.Add(visitorTTL + time.Second)
	l.getLimiter("10.0.0.2")
	l.cleanup(visitorTTL)

	if _, ok := l.visitors["10.0.0.1"]; ok {
		t.Error("expected stale visitor to be removed")
	}

	if _, ok := l.visitors["10.0.0.2"]; !ok {
		t.Error("expected fresh visitor to be kept")
	}
}

func TestSiteRoutes(t *testing.T) {
	s := newTestServer(t, testOptions{})

	rec := s.do(t, http.MethodGet, "/api-reference/ringer/telique/v1-telique-lookup", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "Lookup a number") {
		t.Error("expected endpoint summary in page")
	}

	rec = s.do(t, http.MethodGet, "/no/such/page", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected HTML not-found page, got %q", ct)
	}
}

func TestOpenAPISpec(t *testing.T) {
	s := newTestServer(t, testOptions{})

	rec := s.do(t, http.MethodGet, "/api/v1/openapi.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	doc := decode[map[string]any](t, rec)

	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		t.Fatalf("expected paths object, got %T", doc["paths"])
	}

	for _, path := range []string{"/specs", "/sync", "/audit"} {
		if _, ok := paths[path]; !ok {
			t.Errorf("expected %s in service spec", path)
		}
	}
}

func TestMetricsMiddleware(t *testing.T) {
	s := newTestServer(t, testOptions{})

	s.do(t, http.MethodGet, "/api/v1/specs/ringer/telique", "")
	s.do(t, http.MethodGet, "/api/v1/specs/ringer/missing", "")

	ok := testutil.ToFloat64(s.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/specs/{category}/{spec}", "200"))
	if ok != 1 {
		t.Errorf("expected 1 successful request, got %v", ok)
	}

	missing := testutil.ToFloat64(s.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/specs/{category}/{spec}", "404"))
	if missing != 1 {
		t.Errorf("expected 1 not-found request, got %v", missing)
	}

	rec := s.do(t, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), "ringer_docs_http_requests_total") {
		t.Error("expected request counter in metrics output")
	}
}

func TestWebSocketNotifications(t *testing.T) {
	s := newTestServer(t, testOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.hub.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() Message {
		t.Helper()

		if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
			t.Fatal(err)
		}

		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}

		return msg
	}

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatal(err)
	}

	if msg := read(); msg.Type != MessageTypePong {
		t.Fatalf("expected pong, got %s", msg.Type)
	}

	if err := conn.WriteJSON(Message{Type: MessageTypeSubscribe, Category: "ringer"}); err != nil {
		t.Fatal(err)
	}

	if msg := read(); msg.Type != MessageTypeSubscribed || msg.Category != "ringer" {
		t.Fatalf("expected subscribed, got %+v", msg)
	}

	s.BroadcastSyncRun(&store.SyncRun{
		ID:     "run-1",
		Status: store.SyncStatusSucceeded,
		Files: []*store.SyncedFile{
			{ID: "f1", Category: "ringer", Name: "telique.yaml"},
			{ID: "f2", Category: "partners", Name: "acme.yaml"},
		},
	})

	got := make(map[MessageType]Message)
	for i := 0; i < 2; i++ {
		msg := read()
		got[msg.Type] = msg
	}

	if _, ok := got[MessageTypeSyncCompleted]; !ok {
		t.Error("expected sync_completed message")
	}

	synced, ok := got[MessageTypeSpecsSynced]
	if !ok {
		t.Fatal("expected specs_synced message")
	}

	if synced.Category != "ringer" {
		t.Errorf("expected ringer category, got %q", synced.Category)
	}

	payload, _ := synced.Payload.(map[string]any)
	if files, _ := payload["files"].([]any); len(files) != 1 {
		t.Errorf("expected one ringer file, got %v", payload["files"])
	}
}
