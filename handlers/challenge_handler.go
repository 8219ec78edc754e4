package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"savquestAPI/internal/challenge"
	"savquestAPI/middleware"
	"savquestAPI/services"
)

type ChallengeHandler struct {
	challengeService *services.ChallengeService
	userService      *services.UserService
}

func NewChallengeHandler(challengeService *services.ChallengeService, userService *services.UserService) *ChallengeHandler {
	return &ChallengeHandler{
		challengeService: challengeService,
		userService:      userService,
	}
}

func (h *ChallengeHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	var status *challenge.Status
	if s := r.URL.Query().Get("status"); s != "" {
		st := challenge.Status(s)
		switch st {
		case challenge.StatusActive, challenge.StatusCompleted, challenge.StatusFailed, challenge.StatusExpired:
			status = &st
		default:
			respondWithError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
	}

	challenges, err := h.challengeService.ListChallenges(ctx, userID, status)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load challenges")
		return
	}

	respondWithJSON(w, http.StatusOK, challenges)
}

func (h *ChallengeHandler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge id")
		return
	}

	c, err := h.challengeService.GetChallenge(ctx, id)
	if err != nil {
		if errors.Is(err, challenge.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Challenge not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to load challenge")
		return
	}
	if c.UserID != userID {
		respondWithError(w, http.StatusNotFound, "Challenge not found")
		return
	}

	respondWithJSON(w, http.StatusOK, c)
}

func (h *ChallengeHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	var draft challenge.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	// Clients create manual challenges only; provenance is not theirs to set.
	draft.Provenance = challenge.ProvenanceManual
	draft.GenerationContext = ""

	c, err := h.challengeService.CreateChallenge(ctx, userID, draft)
	if err != nil {
		if errors.Is(err, challenge.ErrInvalidRule) {
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, c)
}

type generateRequest struct {
	Count      int                   `json:"count"`
	Difficulty *challenge.Difficulty `json:"difficulty,omitempty"`
	Frequency  *challenge.Frequency  `json:"frequency,omitempty"`
}

func (h *ChallengeHandler) GenerateChallenges(w http.ResponseWriter, r *http.Request) {
	// Generation may call the content model; give it room.
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Count <= 0 || req.Count > 10 {
		respondWithError(w, http.StatusBadRequest, "'count' must be between 1 and 10")
		return
	}

	created, err := h.challengeService.GenerateChallenges(ctx, userID, req.Count, services.GenerateOptions{
		Difficulty: req.Difficulty,
		Frequency:  req.Frequency,
	})
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to generate challenges")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

// Evaluate runs a full evaluation pass on demand, the same one the
// background scheduler runs periodically.
func (h *ChallengeHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	changed, err := h.challengeService.RunScheduledEvaluation(ctx, userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Evaluation failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"changed_challenges": changed,
	})
}

func (h *ChallengeHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	st, err := h.challengeService.GetStats(ctx, userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}

	respondWithJSON(w, http.StatusOK, st)
}

// resolveUser maps the authenticated Clerk identity to the internal user id.
// Writes the error response itself when resolution fails.
func (h *ChallengeHandler) resolveUser(ctx context.Context, w http.ResponseWriter) (uuid.UUID, bool) {
	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, false
	}

	u, err := h.userService.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "User not found")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(u.ID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Corrupt user record")
		return uuid.Nil, false
	}
	return userID, true
}
