package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"savquestAPI/middleware"
	"savquestAPI/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type ChatHandler struct {
	chatManager *services.ChatManager
}

func NewChatHandler(chatManager *services.ChatManager) *ChatHandler {
	return &ChatHandler{
		chatManager: chatManager,
	}
}

// CreateRoom opens a discussion room and returns its websocket URL.
func (h *ChatHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	_, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req struct {
		Topic string `json:"topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Topic == "" {
		respondWithError(w, http.StatusBadRequest, "'topic' is required")
		return
	}

	roomID := uuid.New().String()
	h.chatManager.CreateRoom(ctx, roomID, req.Topic)

	respondWithJSON(w, http.StatusOK, map[string]string{
		"roomId": roomID,
		"wsUrl":  "/api/v1/chat/ws/" + roomID,
	})
}

func (h *ChatHandler) GetPublicRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.chatManager.GetPublicRooms()

	respondWithJSON(w, http.StatusOK, rooms)
}

func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	_, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	roomID := mux.Vars(r)["roomID"]
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, err := h.chatManager.GetHistory(ctx, roomID, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}

	respondWithJSON(w, http.StatusOK, messages)
}

// JoinRoom upgrades to a websocket and plugs the client into the room.
func (h *ChatHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomID := vars["roomID"]

	room, exists := h.chatManager.GetRoom(roomID)
	if !exists {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &services.ChatClient{
		Room: room,
		Conn: conn,
		Send: make(chan []byte, 256),
	}

	client.Room.Register <- client
	go client.WritePump()
	go client.ReadPump()
}
