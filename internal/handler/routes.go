package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/truliv/voice-agent/pkg/logger"
)

// RouterOptions configure the agent's HTTP surface
type RouterOptions struct {
	Dispatcher            OutboundDispatcher
	DefaultRegion         string
	LiveKitAPIKey         string
	LiveKitAPISecret      string
	APISecretKey          string
	DispatchRatePerMinute int
}

// NewRouter registers the health, webhook and dispatch routes
func NewRouter(opts RouterOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware)

	router.HandleFunc("/healthz", HandleHealth).Methods(http.MethodGet)

	webhookHandler := NewLiveKitWebhookHandler(opts.LiveKitAPIKey, opts.LiveKitAPISecret)
	router.HandleFunc("/livekit/webhook", webhookHandler.HandleLiveKitWebhook).Methods(http.MethodPost)

	if opts.Dispatcher != nil {
		apiRouter := router.PathPrefix("/api").Subrouter()
		apiRouter.Use(APIKeyMiddleware(opts.APISecretKey))
		apiRouter.Use(RateLimitMiddleware(opts.DispatchRatePerMinute))

		dispatchHandler := NewDispatchHandler(opts.Dispatcher, opts.DefaultRegion)
		apiRouter.HandleFunc("/calls/outbound", dispatchHandler.HandleOutboundCall).Methods(http.MethodPost)
	}

	logger.Base().Info("http routes registered")
	return router
}

// HandleHealth reports liveness
// GET /healthz
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
