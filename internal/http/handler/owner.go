// Package handler exposes the owner CRUD surface over HTTP.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rezkam/greet/internal/domain"
	"github.com/rezkam/greet/internal/http/response"
	"github.com/rezkam/greet/internal/owner"
)

// Server holds the handler dependencies.
type Server struct {
	owners *owner.Service
}

func NewServer(owners *owner.Service) *Server {
	return &Server{owners: owners}
}

type createOwnerRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
	Timezone    string `json:"timezone"`
}

type updateOwnerRequest struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	DateOfBirth *string `json:"dateOfBirth"`
	Timezone    *string `json:"timezone"`
}

type ownerResponse struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	DateOfBirth string    `json:"dateOfBirth"`
	Timezone    string    `json:"timezone"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type eventResponse struct {
	ID                 string     `json:"id"`
	OwnerID            string     `json:"ownerId"`
	EventType          string     `json:"eventType"`
	TargetTimestampUTC time.Time  `json:"targetTimestampUTC"`
	TargetTimezone     string     `json:"targetTimezone"`
	Status             string     `json:"status"`
	ExecutedAt         *time.Time `json:"executedAt,omitempty"`
	FailureReason      *string    `json:"failureReason,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func toOwnerResponse(o *domain.Owner) ownerResponse {
	return ownerResponse{
		ID:          o.ID,
		FirstName:   o.FirstName,
		LastName:    o.LastName,
		DateOfBirth: o.DateOfBirth.String(),
		Timezone:    o.Timezone.String(),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func toEventResponse(e *domain.Event) eventResponse {
	return eventResponse{
		ID:                 e.ID,
		OwnerID:            e.OwnerID,
		EventType:          string(e.Type),
		TargetTimestampUTC: e.TargetTimestampUTC,
		TargetTimezone:     e.TargetTimezone,
		Status:             string(e.Status),
		ExecutedAt:         e.ExecutedAt,
		FailureReason:      e.FailureReason,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

// CreateOwner handles POST /owners.
func (s *Server) CreateOwner(w http.ResponseWriter, r *http.Request) {
	var req createOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if req.FirstName == "" {
		response.ValidationError(w, "firstName", "required field missing")
		return
	}
	if req.DateOfBirth == "" {
		response.ValidationError(w, "dateOfBirth", "required field missing")
		return
	}
	if req.Timezone == "" {
		response.ValidationError(w, "timezone", "required field missing")
		return
	}

	created, err := s.owners.Create(r.Context(), owner.CreateParams{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth,
		Timezone:    req.Timezone,
	})
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.Created(w, toOwnerResponse(created))
}

// GetOwner handles GET /owners/{ownerID}.
func (s *Server) GetOwner(w http.ResponseWriter, r *http.Request) {
	o, err := s.owners.Get(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, toOwnerResponse(o))
}

// UpdateOwner handles PATCH /owners/{ownerID}.
func (s *Server) UpdateOwner(w http.ResponseWriter, r *http.Request) {
	var req updateOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}

	updated, err := s.owners.Update(r.Context(), chi.URLParam(r, "ownerID"), owner.UpdateParams{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth,
		Timezone:    req.Timezone,
	})
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, toOwnerResponse(updated))
}

// DeleteOwner handles DELETE /owners/{ownerID}.
func (s *Server) DeleteOwner(w http.ResponseWriter, r *http.Request) {
	if err := s.owners.Delete(r.Context(), chi.URLParam(r, "ownerID")); err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.NoContent(w)
}

// ListOwnerEvents handles GET /owners/{ownerID}/events with an optional
// status query parameter.
func (s *Server) ListOwnerEvents(w http.ResponseWriter, r *http.Request) {
	var statuses []domain.EventStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.EventStatus(raw)
		switch status {
		case domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted, domain.StatusFailed:
			statuses = append(statuses, status)
		default:
			response.ValidationError(w, "status", "unknown event status")
			return
		}
	}

	events, err := s.owners.ListEvents(r.Context(), chi.URLParam(r, "ownerID"), statuses...)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e))
	}
	response.OK(w, out)
}
