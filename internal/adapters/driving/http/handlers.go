package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
)

// maxImportBytes bounds an import payload
const maxImportBytes = 16 << 20

// maxBodyBytes bounds every other request body
const maxBodyBytes = 1 << 20

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse is returned by the health endpoints
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse is returned by /version
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// EnqueueRequest is the body of POST /api/v1/sync/queue
type EnqueueRequest struct {
	Type   domain.EntityType `json:"type"`
	Action domain.SyncAction `json:"action"`
	Data   json.RawMessage   `json:"data,omitempty"`
}

// TrackEventRequest is the body of POST /api/v1/analytics/events
type TrackEventRequest struct {
	Type   domain.EventType `json:"type"`
	Screen string           `json:"screen,omitempty"`
	Data   map[string]any   `json:"data,omitempty"`
}

// StartSessionRequest is the body of POST /api/v1/analytics/sessions
type StartSessionRequest struct {
	UserID string `json:"userId,omitempty"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Returns ready when the key-value store answers a ping
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  ErrorResponse  "Storage unavailable"
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ready"})
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// Sync queue endpoints

// handleGetSyncStatus godoc
// @Summary      Get sync status
// @Description  Returns the persisted sync status record, or the defaults when none is stored
// @Tags         Sync
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.SyncStatus
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /sync/status [get]
func (s *Server) handleGetSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.syncService.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleGetQueue godoc
// @Summary      List sync queue
// @Description  Returns pending mutations in processing order
// @Tags         Sync
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.SyncQueue
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /sync/queue [get]
func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := s.syncService.Queue(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

// handleEnqueue godoc
// @Summary      Enqueue mutation
// @Description  Appends a mutation descriptor to the sync queue
// @Tags         Sync
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body  EnqueueRequest  true  "Mutation"
// @Success      201  {object}  domain.SyncQueueItem
// @Failure      400  {object}  ErrorResponse  "Invalid input"
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - write scope required"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /sync/queue [post]
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if !decodeBody(w, r, &req) {
		return
	}

	enqueue := domain.EnqueueRequest{Type: req.Type, Action: req.Action}
	if len(req.Data) > 0 {
		enqueue.Data = req.Data
	}

	item, err := s.syncService.Enqueue(r.Context(), enqueue)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleClearQueue godoc
// @Summary      Clear sync queue
// @Description  Drops every pending mutation
// @Tags         Sync
// @Produce      json
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - write scope required"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /sync/queue [delete]
func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	if err := s.syncService.Clear(r.Context()); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveQueueItem godoc
// @Summary      Remove queued mutation
// @Description  Drops one item from the queue. Unknown ids are ignored
// @Tags         Sync
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Queue item ID"
// @Success      204
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - write scope required"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /sync/queue/{id} [delete]
func (s *Server) handleRemoveQueueItem(w http.ResponseWriter, r *http.Request) {
	if err := s.syncService.Remove(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDrain godoc
// @Summary      Drain sync queue
// @Description  Pushes every pending mutation to the cloud once
// @Tags         Sync
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.DrainResult
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - write scope required"
// @Failure      409  {object}  ErrorResponse  "Drain already running"
// @Failure      412  {object}  ErrorResponse  "Cloud sync not configured"
// @Failure      502  {object}  ErrorResponse  "Cloud rejected credentials"
// @Failure      503  {object}  ErrorResponse  "Cloud unreachable"
// @Router       /sync/drain [post]
func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if s.drainer == nil {
		writeError(w, http.StatusServiceUnavailable, "drain not available")
		return
	}

	result, err := s.drainer.RunOnce(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListDeadLetters godoc
// @Summary      List dead letters
// @Description  Returns mutations abandoned after exhausting their retries
// @Tags         Sync
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  domain.SyncQueueItem
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /sync/dead-letters [get]
func (s *Server) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	items, err := s.syncService.DeadLetters(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleRequeueDeadLetters godoc
// @Summary      Requeue dead letters
// @Description  Moves dead letters back to the queue with a fresh retry count
// @Tags         Sync
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]int
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - write scope required"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /sync/dead-letters/requeue [post]
func (s *Server) handleRequeueDeadLetters(w http.ResponseWriter, r *http.Request) {
	n, err := s.syncService.RequeueDeadLetters(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"requeued": n})
}

// Record endpoints

// handleRecordCounts godoc
// @Summary      Count records
// @Description  Returns the number of stored records per entity type
// @Tags         Records
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]int
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /records [get]
func (s *Server) handleRecordCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.entityService.Counts(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// handleListRecords godoc
// @Summary      List records
// @Description  Returns every stored record of one entity type
// @Tags         Records
// @Produce      json
// @Security     BearerAuth
// @Param        type  path  string  true  "Entity type"
// @Success      200  {array}  domain.Record
// @Failure      400  {object}  ErrorResponse  "Unknown entity type"
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Router       /records/{type} [get]
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.entityService.List(r.Context(), domain.EntityType(r.PathValue("type")))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleGetRecord godoc
// @Summary      Get record
// @Description  Returns one stored record
// @Tags         Records
// @Produce      json
// @Security     BearerAuth
// @Param        type  path  string  true  "Entity type"
// @Param        id    path  string  true  "Record ID"
// @Success      200  {object}  domain.Record
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      404  {object}  ErrorResponse  "Record not found"
// @Router       /records/{type}/{id} [get]
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.entityService.Get(r.Context(), domain.EntityType(r.PathValue("type")), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleCreateRecord godoc
// @Summary      Create record
// @Description  Stores the body as a new record and queues a create
// @Tags         Records
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        type  path  string  true  "Entity type"
// @Param        request  body  object  true  "Record body"
// @Success      201  {object}  domain.Record
// @Failure      400  {object}  ErrorResponse  "Invalid input"
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - write scope required"
// @Router       /records/{type} [post]
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	s.saveRecord(w, r, "", http.StatusCreated)
}

// handleUpdateRecord godoc
// @Summary      Update record
// @Description  Replaces the record body and queues an update
// @Tags         Records
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        type  path  string  true  "Entity type"
// @Param        id    path  string  true  "Record ID"
// @Param        request  body  object  true  "Record body"
// @Success      200  {object}  domain.Record
// @Failure      400  {object}  ErrorResponse  "Invalid input"
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - write scope required"
// @Router       /records/{type}/{id} [put]
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	s.saveRecord(w, r, r.PathValue("id"), http.StatusOK)
}

func (s *Server) saveRecord(w http.ResponseWriter, r *http.Request, id string, status int) {
	var data json.RawMessage
	if !decodeBody(w, r, &data) {
		return
	}

	record, err := s.entityService.Save(r.Context(), domain.EntityType(r.PathValue("type")), id, data)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, status, record)
}

// handleDeleteRecord godoc
// @Summary      Delete record
// @Description  Removes the record and queues a delete
// @Tags         Records
// @Produce      json
// @Security     BearerAuth
// @Param        type  path  string  true  "Entity type"
// @Param        id    path  string  true  "Record ID"
// @Success      204
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - write scope required"
// @Failure      404  {object}  ErrorResponse  "Record not found"
// @Router       /records/{type}/{id} [delete]
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.entityService.Delete(r.Context(), domain.EntityType(r.PathValue("type")), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Data transfer endpoints

// handleExport godoc
// @Summary      Export data
// @Description  Returns every entity collection as one document
// @Tags         Data
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.DataExport
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /export [get]
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	export, err := s.dataService.Export(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="agrolink-export.json"`)
	writeJSON(w, http.StatusOK, export)
}

// handleImport godoc
// @Summary      Import data
// @Description  Replaces the collections present in an export document. Nothing is written unless the whole document is valid
// @Tags         Data
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body  domain.DataExport  true  "Export document"
// @Success      200  {object}  domain.ImportResult
// @Failure      400  {object}  ErrorResponse  "Invalid export"
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - write scope required"
// @Failure      413  {object}  ErrorResponse  "Payload too large"
// @Router       /import [post]
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "import payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	result, err := s.dataService.Import(r.Context(), payload)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Analytics endpoints

// handleListEvents godoc
// @Summary      List analytics events
// @Description  Returns the event log, optionally filtered
// @Tags         Analytics
// @Produce      json
// @Security     BearerAuth
// @Param        type    query  string  false  "Only events of this type"
// @Param        screen  query  string  false  "Only events from this screen"
// @Param        last    query  int     false  "Only the trailing n events"
// @Success      200  {array}  domain.AnalyticsEvent
// @Failure      400  {object}  ErrorResponse  "Invalid filter"
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Router       /analytics/events [get]
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		events []*domain.AnalyticsEvent
		err    error
	)
	switch {
	case q.Get("type") != "":
		events, err = s.analyticsService.EventsByType(r.Context(), domain.EventType(q.Get("type")))
	case q.Get("screen") != "":
		events, err = s.analyticsService.EventsByScreen(r.Context(), q.Get("screen"))
	case q.Get("last") != "":
		n, convErr := strconv.Atoi(q.Get("last"))
		if convErr != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "last must be a non-negative integer")
			return
		}
		events, err = s.analyticsService.RecentEvents(r.Context(), n)
	default:
		events, err = s.analyticsService.Events(r.Context())
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleTrackEvent godoc
// @Summary      Track event
// @Description  Appends an event to the log and the active session
// @Tags         Analytics
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body  TrackEventRequest  true  "Event"
// @Success      201  {object}  domain.AnalyticsEvent
// @Failure      400  {object}  ErrorResponse  "Invalid input"
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - write scope required"
// @Router       /analytics/events [post]
func (s *Server) handleTrackEvent(w http.ResponseWriter, r *http.Request) {
	var req TrackEventRequest
	if !decodeBody(w, r, &req) {
		return
	}

	event, err := s.analyticsService.TrackEvent(r.Context(), req.Type, req.Data, req.Screen)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// handleAnalyticsSummary godoc
// @Summary      Analytics summary
// @Description  Aggregates the event log
// @Tags         Analytics
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.AnalyticsSummary
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /analytics/summary [get]
func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.analyticsService.Summary(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleListSessions godoc
// @Summary      List sessions
// @Description  Returns archived sessions, oldest first
// @Tags         Analytics
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  domain.AnalyticsSession
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /analytics/sessions [get]
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.analyticsService.Sessions(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleStartSession godoc
// @Summary      Start session
// @Description  Ends any active session and starts a new one
// @Tags         Analytics
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body  StartSessionRequest  false  "Session owner"
// @Success      201  {object}  domain.AnalyticsSession
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - write scope required"
// @Router       /analytics/sessions [post]
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	session, err := s.analyticsService.StartSession(r.Context(), req.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// handleCurrentSession godoc
// @Summary      Get active session
// @Description  Returns the active session
// @Tags         Analytics
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.AnalyticsSession
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      404  {object}  ErrorResponse  "No active session"
// @Router       /analytics/sessions/current [get]
func (s *Server) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	session := s.analyticsService.CurrentSession()
	if session == nil {
		s.writeServiceError(w, domain.ErrNoActiveSession)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleEndSession godoc
// @Summary      End session
// @Description  Ends and archives the active session
// @Tags         Analytics
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.AnalyticsSession
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - write scope required"
// @Failure      404  {object}  ErrorResponse  "No active session"
// @Router       /analytics/sessions/current [delete]
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.analyticsService.EndSession(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if session == nil {
		s.writeServiceError(w, domain.ErrNoActiveSession)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleClearAnalytics godoc
// @Summary      Clear analytics
// @Description  Drops the event log and session history. The active session is kept
// @Tags         Analytics
// @Produce      json
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - write scope required"
// @Router       /analytics [delete]
func (s *Server) handleClearAnalytics(w http.ResponseWriter, r *http.Request) {
	if err := s.analyticsService.Clear(r.Context()); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cloud config endpoints

// handleGetCloudConfig godoc
// @Summary      Get cloud config
// @Description  Returns the cloud sync endpoint with the API key redacted
// @Tags         Cloud
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.CloudSyncConfig
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      412  {object}  ErrorResponse  "Cloud sync not configured"
// @Router       /cloud [get]
func (s *Server) handleGetCloudConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.cloudConfig.Get(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg.Redacted())
}

// handleSaveCloudConfig godoc
// @Summary      Save cloud config
// @Description  Stores the cloud sync endpoint and API key
// @Tags         Cloud
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body  domain.CloudSyncConfig  true  "Endpoint"
// @Success      200  {object}  domain.CloudSyncConfig
// @Failure      400  {object}  ErrorResponse  "Invalid input"
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - write scope required"
// @Router       /cloud [put]
func (s *Server) handleSaveCloudConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.CloudSyncConfig
	if !decodeBody(w, r, &cfg) {
		return
	}

	if err := s.cloudConfig.Save(r.Context(), &cfg); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg.Redacted())
}

// handleClearCloudConfig godoc
// @Summary      Clear cloud config
// @Description  Removes the stored endpoint
// @Tags         Cloud
// @Produce      json
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - write scope required"
// @Router       /cloud [delete]
func (s *Server) handleClearCloudConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.cloudConfig.Clear(r.Context()); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helper functions

// writeServiceError maps domain errors to status codes
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoActiveSession):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSyncInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotConfigured):
		writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, domain.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusBadGateway, "cloud rejected credentials")
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody decodes a JSON body into v, writing a 400 on failure
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
