package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/loopgrid/internal/habitservice"
	"github.com/starford/loopgrid/internal/retention"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *habitservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *habitservice.Service) *Handler {
	return &Handler{svc: svc}
}

// habitID extracts the {id} URL parameter.
func habitID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// queryInt parses an optional integer query parameter; a missing value yields 0.
func queryInt(r *http.Request, key string) (int64, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	return v, err == nil
}

// ListHabits handles GET /api/habits.
//
//	@Summary		List habits ordered by position
//	@Tags			habits
//	@Produce		json
//	@Success		200	{array}	Habit
//	@Security		BearerAuth
//	@Router			/habits [get]
func (h *Handler) ListHabits(w http.ResponseWriter, r *http.Request) {
	habits, err := h.svc.ListHabits(r.Context())
	if err != nil {
		writeError(w, "list habits", err)
		return
	}
	writeJSON(w, http.StatusOK, habits)
}

// CreateHabit handles POST /api/habits.
//
//	@Summary		Create a habit
//	@Tags			habits
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateHabitRequest	true	"Habit to create"
//	@Success		201		{object}	Habit
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/habits [post]
func (h *Handler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	habit, err := h.svc.CreateHabit(r.Context(), req)
	if err != nil {
		writeError(w, "create habit", err)
		return
	}
	writeJSON(w, http.StatusCreated, habit)
}

// UpdateHabit handles PATCH /api/habits/{id}.
//
//	@Summary		Partially update a habit
//	@Tags			habits
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"Habit id"
//	@Param			body	body		UpdateHabitRequest	true	"Fields to change"
//	@Success		200		{object}	Habit
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/habits/{id} [patch]
func (h *Handler) UpdateHabit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	id, ok := habitID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid habit id"))
		return
	}
	var req UpdateHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	habit, err := h.svc.UpdateHabit(r.Context(), id, req)
	if err != nil {
		writeError(w, "update habit", err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

// DeleteHabit handles DELETE /api/habits/{id}.
//
//	@Summary		Delete a habit and its repetitions
//	@Tags			habits
//	@Param			id	path	int	true	"Habit id"
//	@Success		204	"Habit deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/habits/{id} [delete]
func (h *Handler) DeleteHabit(w http.ResponseWriter, r *http.Request) {
	id, ok := habitID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid habit id"))
		return
	}
	if err := h.svc.DeleteHabit(r.Context(), id); err != nil {
		writeError(w, "delete habit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReorderHabits handles PUT /api/habits/order.
//
//	@Summary		Reorder all habits
//	@Tags			habits
//	@Accept			json
//	@Param			body	body	ReorderRequest	true	"Every habit id in the new order"
//	@Success		204		"Reordered"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/habits/order [put]
func (h *Handler) ReorderHabits(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.ReorderHabits(r.Context(), req.IDs); err != nil {
		writeError(w, "reorder habits", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HabitStats handles GET /api/habits/{id}/stats.
//
//	@Summary		Per-habit statistics
//	@Tags			habits
//	@Produce		json
//	@Param			id		path		int	true	"Habit id"
//	@Param			from	query		int	false	"Range start (epoch ms or s)"
//	@Param			to		query		int	false	"Range end, exclusive (epoch ms or s)"
//	@Success		200		{object}	HabitStats
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/habits/{id}/stats [get]
func (h *Handler) HabitStats(w http.ResponseWriter, r *http.Request) {
	id, ok := habitID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid habit id"))
		return
	}
	from, okFrom := queryInt(r, "from")
	to, okTo := queryInt(r, "to")
	if !okFrom || !okTo {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to must be integers"))
		return
	}
	stats, err := h.svc.Stats(r.Context(), id, from, to)
	if err != nil {
		writeError(w, "habit stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListRepetitions handles GET /api/repetitions.
//
//	@Summary		List repetitions in a time range
//	@Tags			repetitions
//	@Produce		json
//	@Param			from	query		int	false	"Range start (epoch ms or s)"
//	@Param			to		query		int	false	"Range end, exclusive (epoch ms or s)"
//	@Success		200		{array}		Repetition
//	@Security		BearerAuth
//	@Router			/repetitions [get]
func (h *Handler) ListRepetitions(w http.ResponseWriter, r *http.Request) {
	from, okFrom := queryInt(r, "from")
	to, okTo := queryInt(r, "to")
	if !okFrom || !okTo {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to must be integers"))
		return
	}
	reps, err := h.svc.ListRepetitions(r.Context(), from, to)
	if err != nil {
		writeError(w, "list repetitions", err)
		return
	}
	writeJSON(w, http.StatusOK, reps)
}

// SetDay handles POST /api/repetitions.
//
//	@Summary		Set the value of a habit on a day
//	@Tags			repetitions
//	@Accept			json
//	@Param			body	body	SetDayRequest	true	"Repetition"
//	@Success		204		"Stored"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repetitions [post]
func (h *Handler) SetDay(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req SetDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.HabitID == nil || req.Timestamp == nil || req.Value == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("habitId, timestamp and value are required"))
		return
	}
	ts := retention.SanitizeRaw(*req.Timestamp)
	raw := retention.SanitizeRaw(*req.Value)
	if _, err := h.svc.SetDay(r.Context(), *req.HabitID, ts, raw, req.Notes); err != nil {
		writeError(w, "set day", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearDay handles DELETE /api/repetitions.
//
//	@Summary		Clear a habit's day
//	@Tags			repetitions
//	@Param			habitId		query	int	true	"Habit id"
//	@Param			timestamp	query	int	true	"Any instant in the day (epoch ms or s)"
//	@Success		204			"Cleared"
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repetitions [delete]
func (h *Handler) ClearDay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, errID := strconv.ParseInt(q.Get("habitId"), 10, 64)
	ts, errTs := strconv.ParseInt(q.Get("timestamp"), 10, 64)
	if errID != nil || errTs != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("habitId and timestamp are required integers"))
		return
	}
	n, err := h.svc.ClearDay(r.Context(), id, ts)
	if err != nil {
		writeError(w, "clear day", err)
		return
	}
	slog.Debug("day cleared", slog.Int64("habit", id), slog.Int64("removed", n))
	w.WriteHeader(http.StatusNoContent)
}

// Retention handles GET /api/retention.
//
//	@Summary		Aggregated per-day status for every habit
//	@Tags			retention
//	@Produce		json
//	@Param			from	query		int	false	"Range start (epoch ms or s)"
//	@Param			to		query		int	false	"Range end, exclusive (epoch ms or s)"
//	@Success		200		{object}	RetentionMap
//	@Security		BearerAuth
//	@Router			/retention [get]
func (h *Handler) Retention(w http.ResponseWriter, r *http.Request) {
	from, okFrom := queryInt(r, "from")
	to, okTo := queryInt(r, "to")
	if !okFrom || !okTo {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to must be integers"))
		return
	}
	m, err := h.svc.Retention(r.Context(), from, to)
	if err != nil {
		writeError(w, "retention", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
