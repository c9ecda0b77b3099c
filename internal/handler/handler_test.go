package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/daily-diet/internal/auth"
	"github.com/sakif/daily-diet/internal/handler"
	"github.com/sakif/daily-diet/internal/model"
	"github.com/sakif/daily-diet/internal/repository/sqlite"
	"github.com/sakif/daily-diet/internal/service"
)

type testEnv struct {
	db       *sqlite.DB
	sessions *service.AuthService
	users    *service.UserService
	meals    *service.MealService
	logger   *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hasher := auth.SHA256Hasher{}
	return &testEnv{
		db:       db,
		sessions: service.NewAuthService(db, db, hasher, logger),
		users:    service.NewUserService(db, hasher, logger),
		meals:    service.NewMealService(db, logger),
		logger:   logger,
	}
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withSession(req *http.Request, s *model.Session) *http.Request {
	return req.WithContext(auth.WithSession(req.Context(), s))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(dst))
}

const mealBody = `{"name":"Test","description":"Some description","date":"2024-03-01T12:00:00.000Z","is_compliant":true}`

// =========================================================================
// MEALS
// =========================================================================

func TestMealHandler_CreateWithoutSessionMintsAnonymousSession(t *testing.T) {
	env := newTestEnv(t)
	h := handler.NewMealHandler(env.meals, env.sessions, env.logger)

	rr := httptest.NewRecorder()
	h.HandleCreate(rr, jsonRequest(http.MethodPost, "/meals", mealBody))

	require.Equal(t, http.StatusCreated, rr.Code)
	var res map[string]string
	decodeBody(t, rr, &res)
	assert.NotEmpty(t, res["mealId"])

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.Equal(t, 10*24*60*60, cookies[0].MaxAge)

	session, err := env.sessions.ValidateSession(context.Background(), cookies[0].Value)
	require.NoError(t, err)
	meal, err := env.meals.Get(context.Background(), session.Owner(), res["mealId"])
	require.NoError(t, err)
	assert.Equal(t, "Test", meal.Name)
}

func TestMealHandler_CreateWithSessionSetsNoCookie(t *testing.T) {
	env := newTestEnv(t)
	h := handler.NewMealHandler(env.meals, env.sessions, env.logger)
	session := &model.Session{Token: "tok", Principal: model.Authenticated{UserID: "u1"}}

	rr := httptest.NewRecorder()
	h.HandleCreate(rr, withSession(jsonRequest(http.MethodPost, "/meals", mealBody), session))

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Empty(t, rr.Result().Cookies())

	n, err := env.meals.Total(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMealHandler_CreateInvalidBody(t *testing.T) {
	env := newTestEnv(t)
	h := handler.NewMealHandler(env.meals, env.sessions, env.logger)

	bodies := map[string]string{
		"not json":     `{`,
		"missing name": `{"description":"d","date":"2024-03-01T12:00:00Z","is_compliant":true}`,
		"bad date":     `{"name":"n","description":"d","date":"yesterday","is_compliant":true}`,
		"missing flag": `{"name":"n","description":"d","date":"2024-03-01T12:00:00Z"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.HandleCreate(rr, jsonRequest(http.MethodPost, "/meals", body))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Empty(t, rr.Result().Cookies(), "no session for a rejected request")

			var res handler.ErrorResponse
			decodeBody(t, rr, &res)
			assert.Equal(t, "validation_error", res.Error)
		})
	}
}

func TestMealHandler_ValidationErrorNamesField(t *testing.T) {
	env := newTestEnv(t)
	h := handler.NewMealHandler(env.meals, env.sessions, env.logger)

	rr := httptest.NewRecorder()
	h.HandleCreate(rr, jsonRequest(http.MethodPost, "/meals",
		`{"name":"   ","description":"d","date":"2024-03-01T12:00:00Z","is_compliant":true}`))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var res handler.ErrorResponse
	decodeBody(t, rr, &res)
	assert.Equal(t, "name", res.Field)
	assert.Equal(t, "name must not be empty", res.Message)
}

func TestMealHandler_ListFiltersAndValidation(t *testing.T) {
	env := newTestEnv(t)
	h := handler.NewMealHandler(env.meals, env.sessions, env.logger)
	session := &model.Session{Token: "tok", Principal: model.Anonymous{}}

	for _, body := range []string{
		`{"name":"Salad","description":"green","date":"2024-03-01T12:00:00Z","is_compliant":true}`,
		`{"name":"Burger","description":"beef","date":"2024-03-02T12:00:00Z","is_compliant":false}`,
	} {
		rr := httptest.NewRecorder()
		h.HandleCreate(rr, withSession(jsonRequest(http.MethodPost, "/meals", body), session))
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	tests := []struct {
		query     string
		wantCode  int
		wantNames []string
	}{
		{"", http.StatusOK, []string{"Burger", "Salad"}},
		{"?order=desc", http.StatusOK, []string{"Salad", "Burger"}},
		{"?name=sal", http.StatusOK, []string{"Salad"}},
		{"?is_compliant=false", http.StatusOK, []string{"Burger"}},
		{"?date=2024-03-02T12:00:00.000Z", http.StatusOK, []string{"Burger"}},
		{"?sort_by=date&order=desc", http.StatusOK, []string{"Burger", "Salad"}},
		{"?sort_by=id", http.StatusBadRequest, nil},
		{"?order=sideways", http.StatusBadRequest, nil},
		{"?is_compliant=maybe", http.StatusBadRequest, nil},
		{"?date=today", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.HandleList(rr, withSession(httptest.NewRequest(http.MethodGet, "/meals"+tt.query, nil), session))
			require.Equal(t, tt.wantCode, rr.Code)
			if tt.wantCode != http.StatusOK {
				return
			}

			var res struct {
				Meals []model.Meal `json:"meals"`
			}
			decodeBody(t, rr, &res)
			names := []string{}
			for _, m := range res.Meals {
				names = append(names, m.Name)
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestMealHandler_RequiresSessionInContext(t *testing.T) {
	env := newTestEnv(t)
	h := handler.NewMealHandler(env.meals, env.sessions, env.logger)

	rr := httptest.NewRecorder()
	h.HandleList(rr, httptest.NewRequest(http.MethodGet, "/meals", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMealHandler_GetUpdateDelete(t *testing.T) {
	env := newTestEnv(t)
	h := handler.NewMealHandler(env.meals, env.sessions, env.logger)
	owner := &model.Session{Token: "owner", Principal: model.Anonymous{}}
	stranger := &model.Session{Token: "stranger", Principal: model.Anonymous{}}

	rr := httptest.NewRecorder()
	h.HandleCreate(rr, withSession(jsonRequest(http.MethodPost, "/meals", mealBody), owner))
	require.Equal(t, http.StatusCreated, rr.Code)
	var created map[string]string
	decodeBody(t, rr, &created)
	id := created["mealId"]

	do := func(method, body string, s *model.Session, fn http.HandlerFunc) *httptest.ResponseRecorder {
		req := withSession(jsonRequest(method, "/meals/"+id, body), s)
		req.SetPathValue("id", id)
		rr := httptest.NewRecorder()
		fn(rr, req)
		return rr
	}

	// GET
	rr = do(http.MethodGet, "", owner, h.HandleGet)
	require.Equal(t, http.StatusOK, rr.Code)
	var got struct {
		Meal model.Meal `json:"meal"`
	}
	decodeBody(t, rr, &got)
	assert.Equal(t, id, got.Meal.ID)
	assert.Equal(t, "owner", got.Meal.UserID)

	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "", stranger, h.HandleGet).Code)

	// PATCH
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPatch, `{}`, owner, h.HandleUpdate).Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPatch, `{"date":"soon"}`, owner, h.HandleUpdate).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodPatch, `{"name":"x"}`, stranger, h.HandleUpdate).Code)
	assert.Equal(t, http.StatusNoContent, do(http.MethodPatch, `{"name":"Edited","is_compliant":false}`, owner, h.HandleUpdate).Code)

	meal, err := env.meals.Get(context.Background(), "owner", id)
	require.NoError(t, err)
	assert.Equal(t, "Edited", meal.Name)
	assert.False(t, meal.IsCompliant)

	// DELETE
	assert.Equal(t, http.StatusNotFound, do(http.MethodDelete, "", stranger, h.HandleDelete).Code)
	assert.Equal(t, http.StatusNoContent, do(http.MethodDelete, "", owner, h.HandleDelete).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "", owner, h.HandleGet).Code)
}

func TestMealHandler_TotalsAndStreak(t *testing.T) {
	env := newTestEnv(t)
	h := handler.NewMealHandler(env.meals, env.sessions, env.logger)
	session := &model.Session{Token: "tok", Principal: model.Anonymous{}}

	for _, body := range []string{
		`{"name":"a","description":"","date":"2024-03-01T08:00:00Z","is_compliant":true}`,
		`{"name":"b","description":"","date":"2024-03-02T08:00:00Z","is_compliant":true}`,
		`{"name":"c","description":"","date":"2024-03-03T08:00:00Z","is_compliant":false}`,
	} {
		rr := httptest.NewRecorder()
		h.HandleCreate(rr, withSession(jsonRequest(http.MethodPost, "/meals", body), session))
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	get := func(fn http.HandlerFunc) map[string]int {
		rr := httptest.NewRecorder()
		fn(rr, withSession(httptest.NewRequest(http.MethodGet, "/meals/total", nil), session))
		require.Equal(t, http.StatusOK, rr.Code)
		var res map[string]int
		decodeBody(t, rr, &res)
		return res
	}

	assert.Equal(t, map[string]int{"totalMeals": 3}, get(h.HandleTotal))
	assert.Equal(t, map[string]int{"totalCompliantMeals": 2}, get(h.HandleTotalCompliant))
	assert.Equal(t, map[string]int{"totalNoncompliantMeals": 1}, get(h.HandleTotalNoncompliant))
	assert.Equal(t, map[string]int{"highestStreak": 2}, get(h.HandleHighestStreak))
}

// =========================================================================
// USERS AND LOGIN
// =========================================================================

func TestUserHandler_Create(t *testing.T) {
	env := newTestEnv(t)
	h := handler.NewUserHandler(env.users, env.logger)

	rr := httptest.NewRecorder()
	h.HandleCreate(rr, jsonRequest(http.MethodPost, "/users", `{"user_name":"John Doe","password":"123456P"}`))
	require.Equal(t, http.StatusCreated, rr.Code)
	var res map[string]string
	decodeBody(t, rr, &res)
	assert.NotEmpty(t, res["userId"])

	rr = httptest.NewRecorder()
	h.HandleCreate(rr, jsonRequest(http.MethodPost, "/users", `{"user_name":"","password":"x"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUserHandler_Delete(t *testing.T) {
	env := newTestEnv(t)
	h := handler.NewUserHandler(env.users, env.logger)
	u, err := env.users.Register(context.Background(), "john", "pw")
	require.NoError(t, err)

	del := func(s *model.Session) int {
		req := httptest.NewRequest(http.MethodDelete, "/users/"+u.ID, nil)
		req.SetPathValue("id", u.ID)
		if s != nil {
			req = withSession(req, s)
		}
		rr := httptest.NewRecorder()
		h.HandleDelete(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusUnauthorized, del(nil))
	assert.Equal(t, http.StatusUnauthorized, del(&model.Session{Token: "a", Principal: model.Anonymous{}}))
	assert.Equal(t, http.StatusNoContent, del(&model.Session{Token: "b", Principal: model.Authenticated{UserID: u.ID}}))

	users, err := env.db.FindUsersByName(context.Background(), "john")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestAuthHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	h := handler.NewAuthHandler(env.sessions, env.logger)
	_, err := env.users.Register(context.Background(), "John Doe", "123456P")
	require.NoError(t, err)

	t.Run("already logged in", func(t *testing.T) {
		req := jsonRequest(http.MethodPost, "/services/login", `{"user_name":"John Doe","password":"123456P"}`)
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "whatever"})
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("wrong password and unknown user look the same", func(t *testing.T) {
		bodies := []string{
			`{"user_name":"John Doe","password":"nope"}`,
			`{"user_name":"Nobody","password":"123456P"}`,
		}
		var responses []string
		for _, body := range bodies {
			rr := httptest.NewRecorder()
			h.HandleLogin(rr, jsonRequest(http.MethodPost, "/services/login", body))
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Empty(t, rr.Result().Cookies())
			responses = append(responses, rr.Body.String())
		}
		assert.Equal(t, responses[0], responses[1])
	})

	t.Run("success", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, jsonRequest(http.MethodPost, "/services/login", `{"user_name":"John Doe","password":"123456P"}`))
		require.Equal(t, http.StatusNoContent, rr.Code)

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.CookieName, cookies[0].Name)
		assert.Equal(t, 24*60*60, cookies[0].MaxAge)
		assert.Equal(t, "/", cookies[0].Path)
	})
}

func TestUserAndAuthHandlers_Log(t *testing.T) {
	env := newTestEnv(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	users := handler.NewUserHandler(env.users, logger)
	login := handler.NewAuthHandler(env.sessions, logger)

	rr := httptest.NewRecorder()
	users.HandleCreate(rr, jsonRequest(http.MethodPost, "/users", `{"user_name":"John Doe","password":"123456P"}`))
	require.Equal(t, http.StatusCreated, rr.Code)
	var created map[string]string
	decodeBody(t, rr, &created)
	assert.Contains(t, logs.String(), `msg="user registered" user_id=`+created["userId"])

	rr = httptest.NewRecorder()
	login.HandleLogin(rr, jsonRequest(http.MethodPost, "/services/login", `{"user_name":"John Doe","password":"123456P"}`))
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, logs.String(), `msg="user logged in" user_id=`+created["userId"])

	req := jsonRequest(http.MethodPost, "/services/login", `{"user_name":"John Doe","password":"123456P"}`)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "whatever"})
	rr = httptest.NewRecorder()
	login.HandleLogin(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, logs.String(), "level=WARN")

	req = httptest.NewRequest(http.MethodDelete, "/users/"+created["userId"], nil)
	req.SetPathValue("id", created["userId"])
	req = withSession(req, &model.Session{Token: "t", Principal: model.Authenticated{UserID: created["userId"]}})
	rr = httptest.NewRecorder()
	users.HandleDelete(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 1, strings.Count(logs.String(), "user deleted"))
}

// =========================================================================
// HEALTH
// =========================================================================

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rr := httptest.NewRecorder()
	handler.NewHealthHandler(pingFunc(func(context.Context) error { return nil }), logger).
		HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	handler.NewHealthHandler(pingFunc(func(context.Context) error { return errors.New("down") }), logger).
		HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
