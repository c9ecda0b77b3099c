package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/daily-diet/internal/apperror"
	"github.com/sakif/daily-diet/internal/auth"
	"github.com/sakif/daily-diet/internal/model"
	"github.com/sakif/daily-diet/internal/repository"
	"github.com/sakif/daily-diet/internal/service"
)

// MealHandler serves /meals. Every route except creation sits behind
// auth.RequireSession; creation sits behind auth.OptionalSession and mints
// an anonymous session when the caller has none.
type MealHandler struct {
	meals    *service.MealService
	sessions *service.AuthService
	logger   *slog.Logger
}

func NewMealHandler(meals *service.MealService, sessions *service.AuthService, logger *slog.Logger) *MealHandler {
	return &MealHandler{
		meals:    meals,
		sessions: sessions,
		logger:   logger,
	}
}

type createMealRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Date        *string `json:"date"`
	IsCompliant *bool   `json:"is_compliant"`
}

// patchMealRequest has the same fields, all optional.
type patchMealRequest createMealRequest

// HandleCreate stores a meal for the caller.
//
// HTTP: POST /meals
// REQUEST BODY: {"name":"...","description":"...","date":"2024-03-01T12:00:00Z","is_compliant":true}
// RESPONSE: 201 {"mealId":"..."}
//
// A caller without an active session gets a fresh anonymous session and its
// cookie (10 days); a caller with one keeps it and no cookie is set.
func (h *MealHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createMealRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	in := service.MealInput{
		Name:        req.Name,
		Description: req.Description,
		IsCompliant: req.IsCompliant,
	}
	if req.Date != nil {
		date, err := service.ParseMealDate("date", *req.Date)
		if err != nil {
			writeError(w, err)
			return
		}
		in.Date = &date
	}
	if err := in.Validate(); err != nil {
		writeError(w, err)
		return
	}

	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		var err error
		session, err = h.sessions.StartAnonymousSession(r.Context())
		if err != nil {
			h.logger.Error("failed to start anonymous session", slog.String("error", err.Error()))
			writeError(w, err)
			return
		}
		auth.SetSessionCookie(w, session.Token, model.AnonymousSessionTTL)
	}

	meal, err := h.meals.Create(r.Context(), session.Owner(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"mealId": meal.ID})
}

// HandleList returns the caller's meals.
//
// HTTP: GET /meals?name=&description=&date=&is_compliant=&sort_by=&order=
// RESPONSE: 200 {"meals":[...]}
func (h *MealHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	filter, err := parseMealFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	meals, err := h.meals.List(r.Context(), owner, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]model.Meal{"meals": meals})
}

// HandleGet returns one meal.
//
// HTTP: GET /meals/{id}
// RESPONSE: 200 {"meal":{...}}, 404 when missing or owned by someone else
func (h *MealHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	meal, err := h.meals.Get(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]*model.Meal{"meal": meal})
}

// HandleUpdate applies a partial update.
//
// HTTP: PATCH /meals/{id}
// RESPONSE: 204, 404 when missing or owned by someone else
func (h *MealHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req patchMealRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	patch := model.MealPatch{
		Name:        req.Name,
		Description: req.Description,
		IsCompliant: req.IsCompliant,
	}
	if req.Date != nil {
		date, err := service.ParseMealDate("date", *req.Date)
		if err != nil {
			writeError(w, err)
			return
		}
		patch.Date = &date
	}

	if err := h.meals.Update(r.Context(), owner, r.PathValue("id"), patch); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete removes a meal.
//
// HTTP: DELETE /meals/{id}
// RESPONSE: 204, 404 when missing or owned by someone else
func (h *MealHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.meals.Delete(r.Context(), owner, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleTotal: GET /meals/total → {"totalMeals": n}
func (h *MealHandler) HandleTotal(w http.ResponseWriter, r *http.Request) {
	h.writeCount(w, r, "totalMeals", h.meals.Total)
}

// HandleTotalCompliant: GET /meals/total/compliant → {"totalCompliantMeals": n}
func (h *MealHandler) HandleTotalCompliant(w http.ResponseWriter, r *http.Request) {
	h.writeCount(w, r, "totalCompliantMeals", h.meals.TotalCompliant)
}

// HandleTotalNoncompliant: GET /meals/total/noncompliant → {"totalNoncompliantMeals": n}
func (h *MealHandler) HandleTotalNoncompliant(w http.ResponseWriter, r *http.Request) {
	h.writeCount(w, r, "totalNoncompliantMeals", h.meals.TotalNoncompliant)
}

// HandleHighestStreak: GET /meals/highest-compliant-streak → {"highestStreak": n}
func (h *MealHandler) HandleHighestStreak(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	n, err := h.meals.HighestStreak(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"highestStreak": n})
}

func (h *MealHandler) writeCount(
	w http.ResponseWriter,
	r *http.Request,
	key string,
	count func(ctx context.Context, owner string) (int64, error),
) {
	owner, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	n, err := count(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{key: n})
}

// ownerFromRequest returns the owner reference of the session placed in the
// context by auth.RequireSession, writing a 401 if there is none.
func ownerFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("login to access meals"))
		return "", false
	}
	return session.Owner(), true
}

// parseMealFilter reads the listing query string. Unknown sort columns and
// orders are rejected rather than ignored.
func parseMealFilter(r *http.Request) (repository.MealFilter, error) {
	q := r.URL.Query()
	filter := repository.MealFilter{
		Name:        q.Get("name"),
		Description: q.Get("description"),
	}

	if v := q.Get("date"); v != "" {
		date, err := service.ParseMealDate("date", v)
		if err != nil {
			return filter, err
		}
		filter.Date = &date
	}

	if v := q.Get("is_compliant"); v != "" {
		compliant, err := strconv.ParseBool(v)
		if err != nil {
			return filter, apperror.ValidationFailed("is_compliant", "is_compliant must be true or false")
		}
		filter.IsCompliant = &compliant
	}

	switch v := q.Get("sort_by"); v {
	case "", repository.SortByName, repository.SortByDescription, repository.SortByDate:
		filter.SortBy = v
	default:
		return filter, apperror.ValidationFailed("sort_by", "sort_by must be one of name, description, date")
	}

	switch q.Get("order") {
	case "", "asc":
	case "desc":
		filter.Descending = true
	default:
		return filter, apperror.ValidationFailed("order", "order must be asc or desc")
	}

	return filter, nil
}
