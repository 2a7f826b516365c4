package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/teliax/ringer-docs/pkg/auth"
	"github.com/teliax/ringer-docs/pkg/spec"
	"github.com/teliax/ringer-docs/pkg/store"
	"github.com/teliax/ringer-docs/pkg/syncer"
)

// syncRequestTimeout bounds a sync started over the API. The run does not
// follow the request context, so a disconnecting client leaves it running.
const syncRequestTimeout = 10 * time.Minute

// ============================================================================
// System
// ============================================================================

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status string     `json:"status" example:"ok"`
	Specs  int        `json:"specs" example:"3"`
	Sync   HealthSync `json:"sync"`
}

// HealthSync describes the sync configuration of the server.
type HealthSync struct {
	Enabled bool `json:"enabled" example:"true"`
	Running bool `json:"running" example:"false"`
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Description	Returns the health status of the server and the number of published specs
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		429	{object}	RateLimitErrorResponse	"Rate limit exceeded"
//	@Router			/health [get]
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	refs := s.specs.List()
	s.metrics.SetSpecCount(len(refs))

	resp := HealthResponse{
		Status: "ok",
		Specs:  len(refs),
		Sync:   HealthSync{Enabled: s.scheduler != nil},
	}

	if s.scheduler != nil {
		resp.Sync.Running = s.scheduler.Running()
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// ComponentStatus represents the health status of a component.
type ComponentStatus string

const (
	ComponentStatusHealthy   ComponentStatus = "healthy"
	ComponentStatusDegraded  ComponentStatus = "degraded"
	ComponentStatusUnhealthy ComponentStatus = "unhealthy"
)

// SystemStatusResponse is the response for the status endpoint.
type SystemStatusResponse struct {
	Status    ComponentStatus `json:"status" example:"healthy"`
	Timestamp string          `json:"timestamp" example:"2024-01-15T10:30:00Z"`
	Database  DatabaseStatus  `json:"database"`
	GitHub    *GitHubStatus   `json:"github,omitempty"`
	LastSync  *store.SyncRun  `json:"last_sync,omitempty"`
}

// DatabaseStatus contains database health information.
type DatabaseStatus struct {
	Status  ComponentStatus `json:"status" example:"healthy"`
	Latency string          `json:"latency,omitempty" example:"2ms"`
	Error   string          `json:"error,omitempty"`
}

// GitHubStatus contains GitHub API rate limit information.
type GitHubStatus struct {
	Status             ComponentStatus `json:"status" example:"healthy"`
	RateLimitRemaining int             `json:"rate_limit_remaining" example:"4500"`
	RateLimitReset     string          `json:"rate_limit_reset,omitempty" example:"2024-01-15T11:00:00Z"`
	ResetIn            string          `json:"reset_in,omitempty" example:"29m30s"`
}

// handleStatus godoc
//
//	@Summary		System status
//	@Description	Returns database health, GitHub rate limit and the last sync run
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	SystemStatusResponse
//	@Failure		429	{object}	RateLimitErrorResponse	"Rate limit exceeded"
//	@Router			/status [get]
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := SystemStatusResponse{
		Status:    ComponentStatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	dbStart := time.Now()

	if err := s.store.Ping(dbCtx); err != nil {
		resp.Database = DatabaseStatus{Status: ComponentStatusUnhealthy, Error: err.Error()}
		resp.Status = ComponentStatusDegraded
	} else {
		resp.Database = DatabaseStatus{
			Status:  ComponentStatusHealthy,
			Latency: fmt.Sprintf("%dms", time.Since(dbStart).Milliseconds()),
		}
	}

	if s.github != nil {
		remaining := s.github.RateLimitRemaining()
		resetTime := s.github.RateLimitReset()

		status := ComponentStatusHealthy
		if remaining < s.cfg.Sync.RateLimitBuffer {
			status = ComponentStatusDegraded
		}

		gh := &GitHubStatus{Status: status, RateLimitRemaining: remaining}

		if !resetTime.IsZero() {
			resetIn := time.Until(resetTime)
			if resetIn < 0 {
				resetIn = 0
			}

			gh.RateLimitReset = resetTime.UTC().Format(time.RFC3339)
			gh.ResetIn = resetIn.Round(time.Second).String()
		}

		resp.GitHub = gh
	}

	if runs, err := s.store.ListSyncRuns(ctx, 1); err == nil && len(runs) > 0 {
		resp.LastSync = runs[0]
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// Specs
// ============================================================================

// SpecSummary is one entry of the spec listing.
type SpecSummary struct {
	Category string `json:"category" example:"ringer"`
	Name     string `json:"name" example:"telique"`
	Title    string `json:"title" example:"Telique API"`
	Version  string `json:"version,omitempty" example:"1.2.0"`
	Loadable bool   `json:"loadable" example:"true"`
}

// SpecDetail is a spec with its endpoint index.
type SpecDetail struct {
	Category  string          `json:"category" example:"ringer"`
	Name      string          `json:"name" example:"telique"`
	Info      spec.Info       `json:"info"`
	Servers   []spec.Server   `json:"servers"`
	Endpoints []EndpointEntry `json:"endpoints"`
}

// EndpointEntry is one method/path pair of a spec.
type EndpointEntry struct {
	spec.Entry
	Slug string `json:"slug" example:"v1-telique-lookup"`
}

// SpecValidationResponse is the structural validation result of a spec.
type SpecValidationResponse struct {
	Category string `json:"category" example:"ringer"`
	Name     string `json:"name" example:"telique"`
	spec.ValidationResult
}

// handleListSpecs godoc
//
//	@Summary		List specs
//	@Description	Lists every published OpenAPI spec in directory order
//	@Tags			specs
//	@Produce		json
//	@Success		200	{array}		SpecSummary
//	@Failure		429	{object}	RateLimitErrorResponse	"Rate limit exceeded"
//	@Router			/specs [get]
func (s *server) handleListSpecs(w http.ResponseWriter, _ *http.Request) {
	refs := s.specs.List()
	s.metrics.SetSpecCount(len(refs))

	out := make([]SpecSummary, 0, len(refs))

	for _, ref := range refs {
		summary := SpecSummary{Category: ref.Category, Name: ref.Name, Title: ref.Name}

		doc := s.load(ref.Category, ref.Name)
		if doc != nil {
			summary.Title = doc.Title()
			summary.Version = doc.Info().Version
			summary.Loadable = true
		}

		out = append(out, summary)
	}

	s.writeJSON(w, http.StatusOK, out)
}

// handleGetSpec godoc
//
//	@Summary		Get spec
//	@Description	Returns the info block, servers and endpoint index of a spec
//	@Tags			specs
//	@Produce		json
//	@Param			category	path		string	true	"Category"
//	@Param			spec		path		string	true	"Spec name"
//	@Success		200			{object}	SpecDetail
//	@Failure		404			{object}	ErrorResponse
//	@Router			/specs/{category}/{spec} [get]
func (s *server) handleGetSpec(w http.ResponseWriter, r *http.Request) {
	category, name := chi.URLParam(r, "category"), chi.URLParam(r, "spec")

	doc := s.load(category, name)
	if doc == nil {
		s.writeError(w, http.StatusNotFound, "Spec not found")

		return
	}

	entries := spec.Entries(doc)

	detail := SpecDetail{
		Category:  category,
		Name:      name,
		Info:      doc.Info(),
		Servers:   doc.Servers(),
		Endpoints: make([]EndpointEntry, 0, len(entries)),
	}

	if detail.Servers == nil {
		detail.Servers = []spec.Server{}
	}

	for _, e := range entries {
		detail.Endpoints = append(detail.Endpoints, EndpointEntry{Entry: e, Slug: e.Slug()})
	}

	s.writeJSON(w, http.StatusOK, detail)
}

// handleValidateSpec godoc
//
//	@Summary		Validate spec
//	@Description	Runs structural OpenAPI 3 validation on a spec. Validation never affects publishing.
//	@Tags			specs
//	@Produce		json
//	@Param			category	path		string	true	"Category"
//	@Param			spec		path		string	true	"Spec name"
//	@Success		200			{object}	SpecValidationResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/specs/{category}/{spec}/validation [get]
func (s *server) handleValidateSpec(w http.ResponseWriter, r *http.Request) {
	category, name := chi.URLParam(r, "category"), chi.URLParam(r, "spec")

	doc := s.load(category, name)
	if doc == nil {
		s.writeError(w, http.StatusNotFound, "Spec not found")

		return
	}

	s.writeJSON(w, http.StatusOK, SpecValidationResponse{
		Category:         category,
		Name:             name,
		ValidationResult: spec.ValidateDocument(r.Context(), doc),
	})
}

func (s *server) load(category, name string) *spec.Document {
	doc := s.specs.Load(category, name)
	s.metrics.RecordSpecLoad(doc != nil)

	return doc
}

// ============================================================================
// Sync
// ============================================================================

// handleListSyncRuns godoc
//
//	@Summary		List sync runs
//	@Description	Returns the most recent sync runs, newest first
//	@Tags			sync
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum number of runs (1-100)"	default(20)
//	@Success		200		{array}		store.SyncRun
//	@Failure		500		{object}	ErrorResponse
//	@Router			/sync/runs [get]
func (s *server) handleListSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	runs, err := s.store.ListSyncRuns(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list sync runs")
		s.writeError(w, http.StatusInternalServerError, "Failed to list sync runs")

		return
	}

	if runs == nil {
		runs = []*store.SyncRun{}
	}

	s.writeJSON(w, http.StatusOK, runs)
}

// handleGetSyncRun godoc
//
//	@Summary		Get sync run
//	@Description	Returns a sync run with the files it wrote
//	@Tags			sync
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	store.SyncRun
//	@Failure		404	{object}	ErrorResponse
//	@Router			/sync/runs/{id} [get]
func (s *server) handleGetSyncRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetSyncRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.log.WithError(err).Error("Failed to get sync run")
		s.writeError(w, http.StatusInternalServerError, "Failed to get sync run")

		return
	}

	if run == nil {
		s.writeError(w, http.StatusNotFound, "Sync run not found")

		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

// handleTriggerSync godoc
//
//	@Summary		Trigger sync
//	@Description	Mirrors the spec files from GitHub now and returns the finished run
//	@Tags			sync
//	@Security		BearerAuth
//	@Produce		json
//	@Param			force	query		bool	false	"Sync even when a local checkout is present"
//	@Success		200		{object}	store.SyncRun
//	@Failure		401		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse	"Sync already in progress"
//	@Failure		502		{object}	store.SyncRun	"Sync failed"
//	@Failure		503		{object}	ErrorResponse	"Sync not configured"
//	@Router			/sync [post]
func (s *server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	actor := "unknown"
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		actor = p.Name
	}

	if s.scheduler == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Sync is not configured")

		return
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), syncRequestTimeout)
	defer cancel()

	run, err := s.scheduler.Trigger(ctx, store.SyncTriggerAPI, force)
	if errors.Is(err, syncer.ErrSyncInProgress) {
		s.audit(r.Context(), store.AuditActionSyncRejected, actor, err.Error())
		s.writeError(w, http.StatusConflict, err.Error())

		return
	}

	details := "force=" + strconv.FormatBool(force)
	if run != nil {
		details = fmt.Sprintf("run=%s status=%s force=%t", run.ID, run.Status, force)
	}

	s.audit(r.Context(), store.AuditActionSyncTriggered, actor, details)

	if err != nil {
		s.log.WithError(err).WithField("actor", actor).Warn("Triggered sync failed")

		if run == nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())

			return
		}

		s.writeJSON(w, http.StatusBadGateway, run)

		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

func (s *server) audit(ctx context.Context, action store.AuditAction, actor, details string) {
	entry := &store.AuditEntry{
		ID:        uuid.New().String(),
		Action:    action,
		Actor:     actor,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateAuditEntry(context.WithoutCancel(ctx), entry); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"action": action,
			"actor":  actor,
		}).Warn("Failed to record audit entry")
	}
}

// AuditListResponse is a page of audit entries.
type AuditListResponse struct {
	Entries []*store.AuditEntry `json:"entries"`
	Total   int                 `json:"total" example:"42"`
	Limit   int                 `json:"limit" example:"50"`
	Offset  int                 `json:"offset" example:"0"`
}

// handleListAudit godoc
//
//	@Summary		List audit entries
//	@Description	Returns sync triggers, rejections and history pruning, newest first
//	@Tags			sync
//	@Security		BearerAuth
//	@Produce		json
//	@Param			action	query		string	false	"Filter by action"
//	@Param			actor	query		string	false	"Filter by actor"
//	@Param			since	query		string	false	"RFC 3339 lower bound"
//	@Param			limit	query		int		false	"Page size (1-100)"	default(50)
//	@Param			offset	query		int		false	"Offset"			default(0)
//	@Success		200		{object}	AuditListResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Router			/audit [get]
func (s *server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.AuditQueryOpts{Limit: 50}

	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 100 {
		opts.Limit = l
	}

	if o, err := strconv.Atoi(q.Get("offset")); err == nil && o > 0 {
		opts.Offset = o
	}

	if action := q.Get("action"); action != "" {
		a := store.AuditAction(action)
		opts.Action = &a
	}

	if actor := q.Get("actor"); actor != "" {
		opts.Actor = &actor
	}

	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")

			return
		}

		t = t.UTC()
		opts.Since = &t
	}

	entries, total, err := s.store.ListAuditEntries(r.Context(), opts)
	if err != nil {
		s.log.WithError(err).Error("Failed to list audit entries")
		s.writeError(w, http.StatusInternalServerError, "Failed to list audit entries")

		return
	}

	if entries == nil {
		entries = []*store.AuditEntry{}
	}

	s.writeJSON(w, http.StatusOK, AuditListResponse{
		Entries: entries,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// ============================================================================
// WebSocket
// ============================================================================

// handleWebSocket godoc
//
//	@Summary		WebSocket connection
//	@Description	Streams sync_completed messages, and specs_synced messages for subscribed categories
//	@Tags			websocket
//	@Success		101	"WebSocket connection established"
//	@Router			/ws [get]
func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ServeWs(s.hub, s.cfg.Server.CORSOrigins, w, r)
}
