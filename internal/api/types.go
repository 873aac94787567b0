package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/daminiR/medspa-sub015/internal/waitlist"
)

type JoinWaitlistRequest struct {
	PatientID    string                `json:"patient_id"`
	ServiceID    string                `json:"service_id"`
	ProviderID   string                `json:"provider_id,omitempty"`
	Availability waitlist.Availability `json:"availability,omitempty"`
}

type SlotFreedRequest struct {
	SlotID     string    `json:"slot_id"`
	ServiceID  string    `json:"service_id"`
	ProviderID string    `json:"provider_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

type EntryResponse struct {
	ID           uuid.UUID             `json:"id"`
	PatientID    uuid.UUID             `json:"patient_id"`
	ServiceID    uuid.UUID             `json:"service_id"`
	ProviderID   *uuid.UUID            `json:"provider_id,omitempty"`
	Availability waitlist.Availability `json:"availability,omitempty"`
	Status       string                `json:"status"`
	JoinedAt     time.Time             `json:"joined_at"`
	Position     int                   `json:"position,omitempty"`
}

type OfferResponse struct {
	ID        uuid.UUID `json:"id"`
	SlotID    uuid.UUID `json:"slot_id"`
	EntryID   uuid.UUID `json:"entry_id"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
	Deadline  time.Time `json:"deadline"`
}

type SlotFreedResponse struct {
	SlotID uuid.UUID      `json:"slot_id"`
	Offer  *OfferResponse `json:"offer,omitempty"`
}

type PositionResponse struct {
	EntryID  uuid.UUID `json:"entry_id"`
	Position int       `json:"position"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func entryResponse(e *waitlist.Entry, position int) EntryResponse {
	return EntryResponse{
		ID:           e.ID,
		PatientID:    e.PatientID,
		ServiceID:    e.ServiceID,
		ProviderID:   e.ProviderID,
		Availability: e.Availability,
		Status:       string(e.Status),
		JoinedAt:     e.JoinedAt,
		Position:     position,
	}
}

func offerResponse(o *waitlist.Offer) OfferResponse {
	return OfferResponse{
		ID:        o.ID,
		SlotID:    o.SlotID,
		EntryID:   o.EntryID,
		Outcome:   string(o.Outcome),
		CreatedAt: o.CreatedAt,
		Deadline:  o.Deadline,
	}
}
