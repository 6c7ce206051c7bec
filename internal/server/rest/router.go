package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter returns a configured chi.Router for the sqew HTTP API.
//
// Route layout:
//
//	GET    /health                      – liveness probe, plain "ok"
//	GET    /metrics                     – Prometheus exposition
//	GET    /queues                      – list queues
//	POST   /queues                      – create queue
//	GET    /queues/{name}               – show queue
//	DELETE /queues/{name}               – delete queue (cascades to messages)
//	GET    /queues/{name}/stats         – ready/leased/dlq counts
//	GET    /queues/{name}/messages      – peek (?limit=N)
//	POST   /queues/{name}/messages      – enqueue
//	DELETE /queues/{name}/messages      – purge
//	POST   /queues/{name}/poll          – lease a batch of messages
//	POST   /queues/{name}/requeue-dlq   – move DLQ contents back
//	POST   /messages/ack                – delete by ids
//	POST   /messages/nack               – requeue/drop by ids
//
// gatherer serves /metrics; pass prometheus.DefaultGatherer when no custom
// registry is in play.
func NewRouter(srv *Server, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	// Built-in chi middleware for observability and hygiene.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(srv.logger))
	r.Use(PrometheusMiddleware(srv.metrics))

	r.Get("/health", srv.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/queues", func(r chi.Router) {
		r.Get("/", srv.handleListQueues)
		r.Post("/", srv.handleCreateQueue)

		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", srv.handleShowQueue)
			r.Delete("/", srv.handleDeleteQueue)
			r.Get("/stats", srv.handleQueueStats)
			r.Get("/messages", srv.handlePeekMessages)
			r.Post("/messages", srv.handleEnqueueMessage)
			r.Delete("/messages", srv.handlePurgeMessages)
			r.Post("/poll", srv.handlePollMessages)
			r.Post("/requeue-dlq", srv.handleRequeueDLQ)
		})
	})

	r.Route("/messages", func(r chi.Router) {
		r.Post("/ack", srv.handleAckMessages)
		r.Post("/nack", srv.handleNackMessages)
	})

	return r
}
