package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/greet/internal/domain"
	"github.com/rezkam/greet/internal/materializer"
	"github.com/rezkam/greet/internal/occurrence"
	"github.com/rezkam/greet/internal/owner"
)

// stubStore is an in-memory owner.Store for handler tests.
type stubStore struct {
	owners map[string]*domain.Owner
	events map[string]*domain.Event
}

func newStubStore() *stubStore {
	return &stubStore{owners: map[string]*domain.Owner{}, events: map[string]*domain.Event{}}
}

func (s *stubStore) CreateOwner(_ context.Context, o *domain.Owner) error {
	s.owners[o.ID] = o
	return nil
}

func (s *stubStore) FindOwnerByID(_ context.Context, id string) (*domain.Owner, error) {
	o, ok := s.owners[id]
	if !ok {
		return nil, domain.ErrOwnerNotFound
	}
	return o, nil
}

func (s *stubStore) UpdateOwner(_ context.Context, o *domain.Owner) error {
	if _, ok := s.owners[o.ID]; !ok {
		return domain.ErrOwnerNotFound
	}
	s.owners[o.ID] = o
	return nil
}

func (s *stubStore) DeleteOwner(_ context.Context, id string) error {
	if _, ok := s.owners[id]; !ok {
		return domain.ErrOwnerNotFound
	}
	delete(s.owners, id)
	return nil
}

func (s *stubStore) CreateEvent(_ context.Context, e *domain.Event) error {
	s.events[e.ID] = e
	return nil
}

func (s *stubStore) FindEventsByOwner(_ context.Context, ownerID string, statuses ...domain.EventStatus) ([]*domain.Event, error) {
	var out []*domain.Event
	for _, e := range s.events {
		if e.OwnerID != ownerID {
			continue
		}
		if len(statuses) == 0 {
			out = append(out, e)
			continue
		}
		for _, st := range statuses {
			if e.Status == st {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (s *stubStore) UpdateEvent(_ context.Context, e *domain.Event) error {
	s.events[e.ID] = e
	return nil
}

func (s *stubStore) WithTx(_ context.Context, fn func(tx owner.Store) error) error {
	return fn(s)
}

func newTestRouter() *chi.Mux {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	registry := materializer.NewRegistry(
		materializer.NewBirthdayStrategy(occurrence.DefaultDeliveryTime, "https://hooks.example.com/birthday"))
	svc := owner.NewService(newStubStore(), materializer.New(registry, clock), clock)
	server := NewServer(svc)

	r := chi.NewRouter()
	r.Post("/owners", server.CreateOwner)
	r.Get("/owners/{ownerID}", server.GetOwner)
	r.Patch("/owners/{ownerID}", server.UpdateOwner)
	r.Delete("/owners/{ownerID}", server.DeleteOwner)
	r.Get("/owners/{ownerID}/events", server.ListOwnerEvents)
	return r
}

func createOwner(t *testing.T, router *chi.Mux) ownerResponse {
	t.Helper()
	body := `{"firstName":"John","lastName":"Doe","dateOfBirth":"1990-03-15","timezone":"America/New_York"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/owners", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created ownerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created
}

func TestCreateOwner(t *testing.T) {
	router := newTestRouter()
	created := createOwner(t, router)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "John", created.FirstName)
	assert.Equal(t, "1990-03-15", created.DateOfBirth)
	assert.Equal(t, "America/New_York", created.Timezone)
}

func TestCreateOwner_ValidationErrors(t *testing.T) {
	router := newTestRouter()
	cases := map[string]string{
		"missing firstName": `{"dateOfBirth":"1990-03-15","timezone":"UTC"}`,
		"bad date":          `{"firstName":"John","dateOfBirth":"15/03/1990","timezone":"UTC"}`,
		"bad timezone":      `{"firstName":"John","dateOfBirth":"1990-03-15","timezone":"Mars/Olympus"}`,
		"not json":          `{{{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/owners", bytes.NewBufferString(body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetOwner_NotFound(t *testing.T) {
	router := newTestRouter()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateOwner_Timezone(t *testing.T) {
	router := newTestRouter()
	created := createOwner(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/owners/"+created.ID,
		bytes.NewBufferString(`{"timezone":"Asia/Tokyo"}`)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated ownerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Asia/Tokyo", updated.Timezone)
}

func TestDeleteOwner(t *testing.T) {
	router := newTestRouter()
	created := createOwner(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/owners/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOwnerEvents(t *testing.T) {
	router := newTestRouter()
	created := createOwner(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners/"+created.ID+"/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var events []eventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "BIRTHDAY", events[0].EventType)
	assert.Equal(t, "PENDING", events[0].Status)
	assert.Equal(t, time.Date(2025, 3, 15, 13, 0, 0, 0, time.UTC), events[0].TargetTimestampUTC)
}

func TestListOwnerEvents_StatusFilter(t *testing.T) {
	router := newTestRouter()
	created := createOwner(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners/"+created.ID+"/events?status=COMPLETED", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var events []eventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Empty(t, events)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners/"+created.ID+"/events?status=BOGUS", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
