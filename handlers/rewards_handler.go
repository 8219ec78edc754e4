package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"savquestAPI/internal/reward"
	"savquestAPI/middleware"
	"savquestAPI/services"
)

type RewardsHandler struct {
	rewardsService *services.RewardsService
	userService    *services.UserService
}

func NewRewardsHandler(rewardsService *services.RewardsService, userService *services.UserService) *RewardsHandler {
	return &RewardsHandler{
		rewardsService: rewardsService,
		userService:    userService,
	}
}

func (h *RewardsHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	u, err := h.userService.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "User not found")
		return
	}
	userID, err := uuid.Parse(u.ID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Corrupt user record")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	entries, err := h.rewardsService.GetLedger(ctx, userID, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load ledger")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"points": u.Points,
		"ledger": entries,
	})
}

func (h *RewardsHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	catalog, err := h.rewardsService.GetCatalog(ctx)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load catalog")
		return
	}

	respondWithJSON(w, http.StatusOK, catalog)
}

func (h *RewardsHandler) RedeemItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req reward.RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ItemID == "" {
		respondWithError(w, http.StatusBadRequest, "'item_id' is required")
		return
	}

	redemption, err := h.rewardsService.RedeemItem(ctx, clerkID, req.ItemID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, redemption)
}
