package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"savquestAPI/middleware"
	"savquestAPI/services"
)

type AnalyticsHandler struct {
	analyticsService *services.AnalyticsService
	userService      *services.UserService
}

func NewAnalyticsHandler(analyticsService *services.AnalyticsService, userService *services.UserService) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		userService:      userService,
	}
}

func (h *AnalyticsHandler) GetMonthlySummaries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	months := 6
	if m := r.URL.Query().Get("months"); m != "" {
		if parsed, err := strconv.Atoi(m); err == nil && parsed > 0 && parsed <= 24 {
			months = parsed
		}
	}

	summaries, err := h.analyticsService.GetMonthlySummaries(ctx, userID, months)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load summaries")
		return
	}

	respondWithJSON(w, http.StatusOK, summaries)
}

func (h *AnalyticsHandler) GetSavingsRate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	days := 30
	if d := r.URL.Query().Get("days"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil && parsed > 0 && parsed <= 365 {
			days = parsed
		}
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	rate, err := h.analyticsService.SavingsRate(ctx, userID, since)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to compute savings rate")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"savings_rate": rate,
		"window_days":  days,
	})
}

func (h *AnalyticsHandler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	st, err := h.analyticsService.GetUserStats(ctx, userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	respondWithJSON(w, http.StatusOK, st)
}

func (h *AnalyticsHandler) resolveUser(ctx context.Context, w http.ResponseWriter) (uuid.UUID, bool) {
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
