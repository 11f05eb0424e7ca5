package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/loopgrid/internal/habitservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *habitservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	th := &TransferHandler{Handler: h}

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Habits.
	r.Get("/habits", h.ListHabits)
	r.Post("/habits", h.CreateHabit)
	r.Put("/habits/order", h.ReorderHabits)
	r.Patch("/habits/{id}", h.UpdateHabit)
	r.Delete("/habits/{id}", h.DeleteHabit)
	r.Get("/habits/{id}/stats", h.HabitStats)

	// Repetitions.
	r.Get("/repetitions", h.ListRepetitions)
	r.Post("/repetitions", h.SetDay)
	r.Delete("/repetitions", h.ClearDay)

	// Aggregated grid data.
	r.Get("/retention", h.Retention)

	// Whole-database transfer.
	r.Get("/export-db", th.ExportDB)
	r.Post("/import-db", th.ImportDB)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
