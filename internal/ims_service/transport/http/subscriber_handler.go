package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aradsms/ims_service/internal/ims_service/domain"
)

const (
	maxBodyBytes = 1 << 20

	msgInvalidNumber = "Phone number must be 11 digits long."
)

// SubscriberHandler handles HTTP requests for IMS subscriber records.
type SubscriberHandler struct {
	repo       domain.SubscriberRepository
	logger     *slog.Logger
	validation domain.ValidationOptions
}

// NewSubscriberHandler creates a new SubscriberHandler.
func NewSubscriberHandler(repo domain.SubscriberRepository, logger *slog.Logger, validation domain.ValidationOptions) *SubscriberHandler {
	return &SubscriberHandler{
		repo:       repo,
		logger:     logger.With("component", "subscriber_handler"),
		validation: validation,
	}
}

// RegisterRoutes sets up the subscriber routes on r.
func (h *SubscriberHandler) RegisterRoutes(r chi.Router) {
	r.Get("/subscribers", h.ListSubscribers)
	r.Get("/subscriber/{number}", h.GetSubscriber)
	r.Put("/subscriber/{number}", h.UpsertSubscriber)
	r.Delete("/subscriber/{number}", h.DeleteSubscriber)
}

func (h *SubscriberHandler) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subs, err := h.repo.ListAll(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "No records found in database")
			return
		}
		h.logger.ErrorContext(ctx, "Listing subscribers failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to get all IMS records")
		return
	}
	respondWithJSON(w, http.StatusOK, subs)
}

func (h *SubscriberHandler) GetSubscriber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	number, ok := h.phoneNumberParam(w, r)
	if !ok {
		return
	}

	sub, err := h.repo.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, fmt.Sprintf("No record found for number %s", number))
			return
		}
		h.logger.ErrorContext(ctx, "Getting subscriber failed", "error", err, "phone_number", number)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get IMS for number %s", number))
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

// UpsertSubscriber creates the subscriber at {number} or partially updates it,
// renaming it when the body carries a different phoneNumber.
func (h *SubscriberHandler) UpsertSubscriber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	number, ok := h.phoneNumberParam(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	patch, err := domain.ValidateRecord(body, h.validation)
	if err != nil {
		h.logger.InfoContext(ctx, "Rejected subscriber payload", "error", err, "phone_number", number)
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := h.repo.Upsert(ctx, number, patch)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			target, _ := patch.RenameTarget(number)
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf(
				"You cannot update the phoneNumber %s to %s: the number %s already exists in the database.", number, target, target))
			return
		}
		h.logger.ErrorContext(ctx, "Upserting subscriber failed", "error", err, "phone_number", number)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to update IMS for number %s", number))
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

func (h *SubscriberHandler) DeleteSubscriber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	number, ok := h.phoneNumberParam(w, r)
	if !ok {
		return
	}

	deleted, err := h.repo.Delete(ctx, number)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, fmt.Sprintf("No record found for number %s", number))
			return
		}
		h.logger.ErrorContext(ctx, "Deleting subscriber failed", "error", err, "phone_number", number)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete IMS for number %s", number))
		return
	}
	respondWithJSON(w, http.StatusOK, DeleteResponse{
		Message:     "Deleted record: " + deleted,
		PhoneNumber: deleted,
	})
}

func (h *SubscriberHandler) phoneNumberParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	number := chi.URLParam(r, "number")
	if err := domain.ValidatePhoneNumber(number); err != nil {
		h.logger.InfoContext(r.Context(), "Rejected phone number", "error", err, "phone_number", number)
		respondWithError(w, http.StatusBadRequest, msgInvalidNumber)
		return "", false
	}
	return number, true
}
