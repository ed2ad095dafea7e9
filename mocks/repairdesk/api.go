package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// ticket is one generated vendor record. Direct-only tickets answer on the
// detail endpoint by display number but never appear in the listing.
type ticket struct {
	OrderID    string
	InternalID int
	Customer   string
	Device     string
	Status     string
	DirectOnly bool
	Notes      []note
}

type note struct {
	Text   string `json:"note"`
	Type   int    `json:"type"`
	IsFlag int    `json:"is_flag"`
}

type book struct {
	mu      sync.RWMutex
	tickets []*ticket
}

var (
	customers = []string{"Ada Ortiz", "Ben Cole", "Chen Wei", "Dina Haddad", "Eli Novak", "Fay Russo"}
	devices   = []string{"iPhone 13", "Galaxy S22", "iPad Air", "Pixel 7", "MacBook Pro", "Switch OLED"}
	statuses  = []string{"Open", "In Progress", "Waiting for Parts", "Ready", "Closed"}
)

// newBook generates n listed tickets T-1000 upward, plus a handful of
// direct-only tickets in the T-9000 range.
func newBook(n int) *book {
	b := &book{}
	for i := range n {
		b.tickets = append(b.tickets, &ticket{
			OrderID:    fmt.Sprintf("T-%d", 1000+i),
			InternalID: 50000 + i*7,
			Customer:   customers[i%len(customers)],
			Device:     devices[(i*5)%len(devices)],
			Status:     statuses[(i*3)%len(statuses)],
		})
	}
	for i := range 5 {
		b.tickets = append(b.tickets, &ticket{
			OrderID:    fmt.Sprintf("T-%d", 9000+i),
			InternalID: 90000 + i,
			Customer:   customers[i%len(customers)],
			Device:     devices[i%len(devices)],
			Status:     "Open",
			DirectOnly: true,
		})
	}
	return b
}

func (b *book) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.tickets)
}

func (b *book) listed() []*ticket {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*ticket, 0, len(b.tickets))
	for _, t := range b.tickets {
		if !t.DirectOnly {
			out = append(out, t)
		}
	}
	return out
}

// find matches id against internal ids first, then direct-only display numbers.
func (b *book) find(id string) (*ticket, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range b.tickets {
		if strconv.Itoa(t.InternalID) == id {
			return t, true
		}
	}
	for _, t := range b.tickets {
		if t.DirectOnly && t.OrderID[2:] == id {
			return t, true
		}
	}
	return nil, false
}

func (b *book) addNote(id string, n note) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.tickets {
		if strconv.Itoa(t.InternalID) == id {
			t.Notes = append(t.Notes, n)
			return true
		}
	}
	return false
}

func (t *ticket) summary() map[string]any {
	return map[string]any{
		"summary": map[string]any{
			"id":       t.InternalID,
			"order_id": t.OrderID,
			"customer": map[string]any{"fullName": t.Customer},
			"status":   t.Status,
		},
		"devices": []map[string]any{{"name": t.Device}},
	}
}

type api struct {
	apiKey  string
	book    *book
	latency time.Duration
	log     *slog.Logger
}

func newAPI(apiKey string, b *book, latency time.Duration, log *slog.Logger) *api {
	return &api{apiKey: apiKey, book: b, latency: latency, log: log}
}

func (a *api) Register(r chi.Router) {
	r.Get("/health", a.handleHealth)
	r.Route("/api/web/v1", func(r chi.Router) {
		r.Use(a.simulateLatency, a.requireKey)
		r.Get("/tickets", a.handleList)
		r.Get("/tickets/{id}", a.handleGet)
		r.Post("/ticket/addnote", a.handleAddNote)
	})
}

func (a *api) simulateLatency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.latency > 0 {
			time.Sleep(a.latency)
		}
		next.ServeHTTP(w, r)
	})
}

// requireKey mirrors the vendor: a bad key is a 401 with a failure envelope.
func (a *api) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != a.apiKey {
			writeEnvelope(w, http.StatusUnauthorized, false, "Invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "repairdesk-mock"})
}

func (a *api) handleList(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)
	if page < 1 || limit < 1 {
		writeEnvelope(w, http.StatusBadRequest, false, "page and limit must be positive", nil)
		return
	}

	listed := a.book.listed()
	start := min((page-1)*limit, len(listed))
	end := min(start+limit, len(listed))

	items := make([]map[string]any, 0, end-start)
	for _, t := range listed[start:end] {
		items = append(items, t.summary())
	}
	a.log.Info("listing page", "page", page, "limit", limit, "items", len(items))
	writeEnvelope(w, http.StatusOK, true, "", map[string]any{"ticketData": items})
}

func (a *api) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := a.book.find(id)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    false,
			"statusCode": http.StatusNotFound,
			"message":    "Ticket not found",
		})
		return
	}

	a.book.mu.RLock()
	data := t.summary()
	data["id"] = t.InternalID
	data["notes"] = append([]note(nil), t.Notes...)
	a.book.mu.RUnlock()

	writeEnvelope(w, http.StatusOK, true, "", data)
}

func (a *api) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID     string `json:"id"`
		Note   string `json:"note"`
		Type   int    `json:"type"`
		IsFlag int    `json:"is_flag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, "Invalid request body", nil)
		return
	}
	if body.Note == "" {
		writeEnvelope(w, http.StatusOK, false, "Note is required", nil)
		return
	}
	if !a.book.addNote(body.ID, note{Text: body.Note, Type: body.Type, IsFlag: body.IsFlag}) {
		writeEnvelope(w, http.StatusOK, false, "Ticket not found", nil)
		return
	}
	a.log.Info("note added", "id", body.ID, "type", body.Type)
	writeEnvelope(w, http.StatusOK, true, "Note added", nil)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, message string, data any) {
	body := map[string]any{"success": success}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
