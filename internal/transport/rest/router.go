// Package rest exposes listing generation over HTTP.
package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/valpere/listforge/internal/transport/rest/handler"
	"github.com/valpere/listforge/internal/transport/rest/middleware"
)

// Container holds all dependencies for the router. History may be nil.
type Container struct {
	Listings handler.ListingGenerator
	History  handler.HistoryReader
	CORS     middleware.CORSConfig
	Logger   *zap.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := mux.NewRouter()

	listingHandler := handler.NewListingHandler(c.Listings, logger)

	// CORS middleware (apply first)
	r.Use(middleware.CORS(c.CORS))
	r.Use(middleware.RequestLogger(logger))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	r.HandleFunc("/generate-listing", listingHandler.Generate).Methods("POST", "OPTIONS")

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/generate-listing", listingHandler.Generate).Methods("POST", "OPTIONS")

	if c.History != nil {
		historyHandler := handler.NewHistoryHandler(c.History, logger)
		v1.HandleFunc("/history", historyHandler.List).Methods("GET", "OPTIONS")
		v1.HandleFunc("/history/{id}", historyHandler.Get).Methods("GET", "OPTIONS")
	}

	return r
}
