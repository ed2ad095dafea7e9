// Command repairdesk is a fake RepairDesk API for local development. It
// serves a generated ticket book behind the same paths and envelopes the
// real vendor uses.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	defaultPort        = "8091"
	defaultAPIKey      = "repairdesk-dev-key"
	defaultLatencyMs   = 50
	defaultTicketCount = 137
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	port := getEnv("PORT", defaultPort)

	api := newAPI(
		getEnv("API_KEY", defaultAPIKey),
		newBook(getEnvInt(log, "TICKET_COUNT", defaultTicketCount)),
		time.Duration(getEnvInt(log, "LATENCY_MS", defaultLatencyMs))*time.Millisecond,
		log,
	)

	r := chi.NewRouter()
	api.Register(r)

	log.Info("mock repairdesk api starting", "port", port, "tickets", api.book.len())
	srv := &http.Server{Addr: ":" + port, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(log *slog.Logger, key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn("invalid integer, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return n
}
