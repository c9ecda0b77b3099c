package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sakif/daily-diet/internal/apperror"
	"github.com/sakif/daily-diet/internal/model"
	"github.com/sakif/daily-diet/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================
//
// fakeStore is an in-memory repository.Store. It keeps just enough
// behaviour (owner scoping, not-found errors) for the service rules to be
// tested without a database. Set failWith to simulate a storage failure.

type fakeStore struct {
	mu       sync.Mutex
	users    map[string]model.User
	sessions map[string]model.Session
	meals    map[string]model.Meal
	nextID   int
	failWith error
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]model.User),
		sessions: make(map[string]model.Session),
		meals:    make(map[string]model.Meal),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	user.ID = f.id("user")
	f.users[user.ID] = *user
	return nil
}

func (f *fakeStore) FindUsersByName(_ context.Context, name string) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []model.User
	for _, u := range f.users {
		if u.UserName == name {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	if _, ok := f.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.users, id)
	for token, s := range f.sessions {
		if uid, ok := s.UserID(); ok && uid == id {
			delete(f.sessions, token)
		}
	}
	for mid, m := range f.meals {
		if m.UserID == id {
			delete(f.meals, mid)
		}
	}
	return nil
}

func (f *fakeStore) CreateSession(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.sessions[s.Token] = *s
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, token string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	s, ok := f.sessions[token]
	if !ok {
		return nil, apperror.NotFound("session", token)
	}
	return &s, nil
}

func (f *fakeStore) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, f.failWith
	}
	var n int64
	for token, s := range f.sessions {
		if s.ExpiresAt.Before(now) {
			delete(f.sessions, token)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateMeal(_ context.Context, meal *model.Meal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	meal.ID = f.id("meal")
	f.meals[meal.ID] = *meal
	return nil
}

func (f *fakeStore) GetMeal(_ context.Context, owner, id string) (*model.Meal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	m, ok := f.meals[id]
	if !ok || m.UserID != owner {
		return nil, apperror.NotFound("meal", id)
	}
	return &m, nil
}

func (f *fakeStore) ListMeals(_ context.Context, owner string, filter repository.MealFilter) ([]model.Meal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := []model.Meal{}
	for _, m := range f.meals {
		if m.UserID != owner {
			continue
		}
		if filter.Name != "" && !strings.Contains(strings.ToLower(m.Name), strings.ToLower(filter.Name)) {
			continue
		}
		if filter.IsCompliant != nil && m.IsCompliant != *filter.IsCompliant {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) UpdateMeal(_ context.Context, owner, id string, patch model.MealPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	m, ok := f.meals[id]
	if !ok || m.UserID != owner {
		return apperror.NotFound("meal", id)
	}
	if patch.Name != nil {
		m.Name = *patch.Name
	}
	if patch.Description != nil {
		m.Description = *patch.Description
	}
	if patch.Date != nil {
		m.Date = *patch.Date
	}
	if patch.IsCompliant != nil {
		m.IsCompliant = *patch.IsCompliant
	}
	f.meals[id] = m
	return nil
}

func (f *fakeStore) DeleteMeal(_ context.Context, owner, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	m, ok := f.meals[id]
	if !ok || m.UserID != owner {
		return apperror.NotFound("meal", id)
	}
	delete(f.meals, id)
	return nil
}

func (f *fakeStore) CountMeals(_ context.Context, owner string, compliant *bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, f.failWith
	}
	var n int64
	for _, m := range f.meals {
		if m.UserID == owner && (compliant == nil || m.IsCompliant == *compliant) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CompliantMealDates(_ context.Context, owner string) ([]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var dates []time.Time
	for _, m := range f.meals {
		if m.UserID == owner && m.IsCompliant {
			dates = append(dates, m.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.failWith }
func (f *fakeStore) Close() error                { return nil }

var errDBDown = errors.New("database is down")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }
