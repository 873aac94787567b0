package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	redisclient "github.com/daminiR/medspa-sub015/internal/redis"
	"github.com/daminiR/medspa-sub015/internal/waitlist"
)

func joinWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinWaitlistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		var providerID *uuid.UUID
		if req.ProviderID != "" {
			id, err := uuid.Parse(req.ProviderID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			providerID = &id
		}

		entry, position, err := svc.Join(r.Context(), waitlist.JoinParams{
			PatientID:    patientID,
			ServiceID:    serviceID,
			ProviderID:   providerID,
			Availability: req.Availability,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, entryResponse(entry, position))
	}
}

func leaveWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_entry_id", "entry id must be a valid UUID")
		if !ok {
			return
		}

		if err := svc.Leave(r.Context(), id); err != nil {
			handleServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func queuePositionHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_entry_id", "entry id must be a valid UUID")
		if !ok {
			return
		}

		position, err := svc.QueuePosition(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, PositionResponse{EntryID: id, Position: position})
	}
}

func slotFreedHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SlotFreedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}
		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		offer, err := svc.SlotFreed(r.Context(), waitlist.SlotFreedParams{
			SlotID:     slotID,
			ServiceID:  serviceID,
			ProviderID: providerID,
			StartTime:  req.StartTime,
			EndTime:    req.EndTime,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := SlotFreedResponse{SlotID: slotID}
		if offer != nil {
			o := offerResponse(offer)
			resp.Offer = &o
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelSlotHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_slot_id", "slot id must be a valid UUID")
		if !ok {
			return
		}

		if err := svc.CancelSlot(r.Context(), id); err != nil {
			handleServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func acceptOfferHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_offer_id", "offer id must be a valid UUID")
		if !ok {
			return
		}

		offer, err := svc.AcceptOffer(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, offerResponse(offer))
	}
}

func declineOfferHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_offer_id", "offer id must be a valid UUID")
		if !ok {
			return
		}

		offer, err := svc.DeclineOffer(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, offerResponse(offer))
	}
}

func listPatientWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_patient_id", "patient id must be a valid UUID")
		if !ok {
			return
		}

		entries, err := svc.ListWaitlistEntries(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]EntryResponse, 0, len(entries))
		for i := range entries {
			resp = append(resp, entryResponse(&entries[i], 0))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listPatientOffersHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_patient_id", "patient id must be a valid UUID")
		if !ok {
			return
		}

		offers, err := svc.ListActiveOffers(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]OfferResponse, 0, len(offers))
		for i := range offers {
			resp = append(resp, offerResponse(&offers[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request, code, details string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, details)
		return uuid.Nil, false
	}
	return id, true
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, waitlist.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "entry_not_found", err.Error())
	case errors.Is(err, waitlist.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, waitlist.ErrOfferNotFound):
		writeError(w, http.StatusNotFound, "offer_not_found", err.Error())
	case errors.Is(err, waitlist.ErrDuplicateEntry):
		writeError(w, http.StatusConflict, "duplicate_active_entry", err.Error())
	case errors.Is(err, waitlist.ErrOfferExpiredState):
		writeError(w, http.StatusConflict, "offer_expired", err.Error())
	case errors.Is(err, waitlist.ErrOfferResolved):
		writeError(w, http.StatusConflict, "offer_already_resolved", err.Error())
	case errors.Is(err, waitlist.ErrSlotHeld):
		writeError(w, http.StatusConflict, "slot_held", err.Error())
	case errors.Is(err, waitlist.ErrSlotConflict),
		errors.Is(err, waitlist.ErrEntryConflict):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, waitlist.ErrInvalidAvailability),
		errors.Is(err, waitlist.ErrInvalidSlotWindow):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_busy", "slot is being processed, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
