package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/SecretDeveloper/sqew/internal/queue"
)

// handleHealth responds to GET /health with a plain-text "ok" so load
// balancers and orchestrators can verify liveness without parsing JSON.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleListQueues responds to GET /queues with a JSON array of all queues
// ordered by id.
func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := queue.ListQueues(r.Context(), s.db)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	// Ensure we always return a JSON array, not null.
	if queues == nil {
		queues = []queue.Queue{}
	}
	writeJSON(w, http.StatusOK, queues)
}

// createQueueBody is the request payload for POST /queues.
type createQueueBody struct {
	Name         string `json:"name"`
	MaxAttempts  *int   `json:"max_attempts"`
	DLQ          string `json:"dlq"`
	VisibilityMS int64  `json:"visibility_ms"`
}

// handleCreateQueue responds to POST /queues.
//
// Body: {"name": string, "max_attempts"?: int, "dlq"?: string,
// "visibility_ms"?: int}. Returns 201 with the created Queue, 409 on a name
// collision, 400 on invalid input.
func (s *Server) handleCreateQueue(w http.ResponseWriter, r *http.Request) {
	var body createQueueBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON: "+err.Error())
		return
	}
	maxAttempts := 5
	if body.MaxAttempts != nil {
		maxAttempts = *body.MaxAttempts
	}
	created, err := queue.CreateQueueWith(r.Context(), s.db, body.Name, maxAttempts, queue.CreateQueueOpts{
		DLQ:          body.DLQ,
		VisibilityMS: body.VisibilityMS,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleShowQueue responds to GET /queues/{name}. Returns 404 when the queue
// does not exist.
func (s *Server) handleShowQueue(w http.ResponseWriter, r *http.Request) {
	q, err := queue.ShowQueue(r.Context(), s.db, chi.URLParam(r, "name"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleDeleteQueue responds to DELETE /queues/{name} with 204 on success
// and 404 when no queue was removed.
func (s *Server) handleDeleteQueue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	removed, err := queue.DeleteQueue(r.Context(), s.db, name)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "queue "+strconv.Quote(name)+" not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleQueueStats responds to GET /queues/{name}/stats with the
// ready/leased/dlq counts. Returns 404 when the queue does not exist.
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := queue.QueueStats(r.Context(), s.db, chi.URLParam(r, "name"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handlePeekMessages responds to GET /queues/{name}/messages?limit=N with a
// read-only list of messages in delivery order. A missing queue peeks as an
// empty array.
func (s *Server) handlePeekMessages(w http.ResponseWriter, r *http.Request) {
	limit := int64(1)
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.ParseInt(limitStr, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "'limit' must be a positive integer")
			return
		}
		limit = n
	}
	msgs, err := queue.Peek(r.Context(), s.db, chi.URLParam(r, "name"), limit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []queue.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// enqueueBody is the request payload for POST /queues/{name}/messages. The
// payload field is kept raw so the stored text round-trips verbatim.
type enqueueBody struct {
	Payload        json.RawMessage `json:"payload"`
	DelayMS        int64           `json:"delay_ms"`
	Priority       int             `json:"priority"`
	IdempotencyKey string          `json:"idempotency_key"`
	TTLMS          int64           `json:"ttl_ms"`
}

// handleEnqueueMessage responds to POST /queues/{name}/messages.
//
// Body: {"payload": <any JSON>, "delay_ms"?: int, "priority"?: int,
// "idempotency_key"?: string, "ttl_ms"?: int}. Returns 201 with the created
// Message, 404 when the queue does not exist, 400 on a malformed body, and
// 409 when the idempotency key is already present.
func (s *Server) handleEnqueueMessage(w http.ResponseWriter, r *http.Request) {
	var body enqueueBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON: "+err.Error())
		return
	}
	if len(body.Payload) == 0 {
		writeError(w, http.StatusBadRequest, "'payload' is required")
		return
	}
	created, err := queue.EnqueueWith(r.Context(), s.db, chi.URLParam(r, "name"), string(body.Payload), queue.EnqueueOpts{
		DelayMS:        body.DelayMS,
		Priority:       body.Priority,
		IdempotencyKey: body.IdempotencyKey,
		TTLMS:          body.TTLMS,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.Enqueued.Inc()
	}
	writeJSON(w, http.StatusCreated, created)
}

// handlePurgeMessages responds to DELETE /queues/{name}/messages with
// {"deleted": N}.
func (s *Server) handlePurgeMessages(w http.ResponseWriter, r *http.Request) {
	deleted, err := queue.Purge(r.Context(), s.db, chi.URLParam(r, "name"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// pollBody is the request payload for POST /queues/{name}/poll.
type pollBody struct {
	Batch        int   `json:"batch"`
	VisibilityMS int64 `json:"visibility_ms"`
}

// handlePollMessages responds to POST /queues/{name}/poll with a JSON array
// of leased messages. Batch defaults to 1; visibility_ms defaults to the
// queue's configured window.
func (s *Server) handlePollMessages(w http.ResponseWriter, r *http.Request) {
	body := pollBody{Batch: 1}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "request body must be JSON: "+err.Error())
			return
		}
		if body.Batch <= 0 {
			body.Batch = 1
		}
	}
	msgs, err := queue.Poll(r.Context(), s.db, chi.URLParam(r, "name"), body.Batch, body.VisibilityMS)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.Polled.Add(float64(len(msgs)))
	}
	if msgs == nil {
		msgs = []queue.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// idsBody is the request payload for ack and nack.
type idsBody struct {
	IDs     []int64 `json:"ids"`
	DelayMS int64   `json:"delay_ms"`
}

// handleAckMessages responds to POST /messages/ack with {"deleted": N}.
// Unknown ids are skipped silently: ack is an idempotent ensure-absent.
func (s *Server) handleAckMessages(w http.ResponseWriter, r *http.Request) {
	var body idsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON: "+err.Error())
		return
	}
	deleted, err := queue.Ack(r.Context(), s.db, body.IDs)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.Acked.Add(float64(deleted))
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// handleNackMessages responds to POST /messages/nack with
// {"requeued": N, "dropped": M}.
func (s *Server) handleNackMessages(w http.ResponseWriter, r *http.Request) {
	var body idsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON: "+err.Error())
		return
	}
	requeued, dropped, err := queue.Nack(r.Context(), s.db, body.IDs, body.DelayMS)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"requeued": requeued, "dropped": dropped})
}

// handleRequeueDLQ responds to POST /queues/{name}/requeue-dlq with
// {"requeued": N}. Returns 400 when the queue has no DLQ configured.
func (s *Server) handleRequeueDLQ(w http.ResponseWriter, r *http.Request) {
	moved, err := queue.RequeueDLQ(r.Context(), s.db, chi.URLParam(r, "name"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"requeued": moved})
}
