// Room handles networking for a discussion topic: the Run() loop owns the
// Clients map, so registration, leaving and broadcast all flow through
// channels instead of locks. The manager destroys a room once it is empty.
package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"

	"savquestAPI/internal/chat"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

type Room struct {
	ID          string
	Topic       string
	Manager     *ChatManager
	Clients     map[*ChatClient]bool
	Broadcast   chan []byte
	Register    chan *ChatClient
	Unregister  chan *ChatClient
	TriggerList chan bool
}

func NewRoom(id, topic string, manager *ChatManager) *Room {
	return &Room{
		ID:          id,
		Topic:       topic,
		Manager:     manager,
		Clients:     make(map[*ChatClient]bool),
		Broadcast:   make(chan []byte),
		Register:    make(chan *ChatClient),
		Unregister:  make(chan *ChatClient),
		TriggerList: make(chan bool),
	}
}

func (r *Room) sendMemberListToAll() {
	type MemberInfo struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}

	members := []MemberInfo{}

	// Safe to read r.Clients here because this is only called inside Run()
	for client := range r.Clients {
		if client.Username != "" {
			members = append(members, MemberInfo{
				ID:       client.UserID,
				Username: client.Username,
			})
		}
	}

	payload := map[string]interface{}{
		"action":  "update_member_list",
		"members": members,
	}

	data, _ := json.Marshal(payload)

	for client := range r.Clients {
		select {
		case client.Send <- data:
		default:
			close(client.Send)
			delete(r.Clients, client)
		}
	}
}

func (r *Room) Run() {
	defer func() {
		close(r.Broadcast)
		close(r.Register)
		close(r.Unregister)
		close(r.TriggerList)
	}()

	for {
		select {
		case client := <-r.Register:
			r.Clients[client] = true
			log.Printf("[Room %s] User connected. Count: %d", r.ID, len(r.Clients))

		case <-r.TriggerList:
			r.sendMemberListToAll()

		case client := <-r.Unregister:
			if _, ok := r.Clients[client]; ok {
				delete(r.Clients, client)
				close(client.Send)

				// If empty, delete the room
				if len(r.Clients) == 0 {
					log.Printf("[Room %s] Empty, destroying.", r.ID)
					r.Manager.DeleteRoom(r.ID)
					return
				}
				r.sendMemberListToAll()
			}

		case message := <-r.Broadcast:
			for client := range r.Clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(r.Clients, client)
				}
			}
		}
	}
}

// The Manager holds all active rooms
type ChatManager struct {
	rooms map[string]*Room
	db    *pgxpool.Pool
	mu    sync.RWMutex
}

func NewChatManager(db *pgxpool.Pool) *ChatManager {
	return &ChatManager{
		rooms: make(map[string]*Room),
		db:    db,
	}
}

func (m *ChatManager) CreateRoom(ctx context.Context, roomID, topic string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[roomID]; ok {
		return r
	}

	r := NewRoom(roomID, topic, m)
	m.rooms[roomID] = r
	go r.Run()
	return r
}

func (m *ChatManager) GetRoom(roomID string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	return r, ok
}

func (m *ChatManager) GetPublicRooms() []chat.RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Initialize as empty slice so it returns [] instead of null in JSON
	rooms := make([]chat.RoomInfo, 0)

	for _, r := range m.rooms {
		rooms = append(rooms, chat.RoomInfo{
			ID:          r.ID,
			Topic:       r.Topic,
			MemberCount: len(r.Clients),
		})
	}

	return rooms
}

func (m *ChatManager) DeleteRoom(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
}

// SaveMessage persists a chat message so room history survives reconnects.
func (m *ChatManager) SaveMessage(ctx context.Context, msg chat.Message) error {
	query := `
		INSERT INTO chat_messages (id, room_id, user_id, username, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := m.db.Exec(ctx, query,
		msg.ID, msg.RoomID, msg.UserID, msg.Username, msg.Body, msg.CreatedAt)
	return err
}

// GetHistory returns the most recent messages for a room, oldest first.
func (m *ChatManager) GetHistory(ctx context.Context, roomID string, limit int) ([]chat.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, room_id, user_id, username, body, created_at
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := m.db.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []chat.Message{}
	for rows.Next() {
		var msg chat.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.Username, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	// Reverse so the client renders oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, rows.Err()
}

// ChatClient is the middleman between the websocket and the room
type ChatClient struct {
	Room     *Room
	Conn     *websocket.Conn
	Send     chan []byte
	UserID   string
	Username string
}

type WsPayload struct {
	Action   string `json:"action"`
	Username string `json:"username"`
	UserID   string `json:"userId"`
	Content  string `json:"content"`
}

func (c *ChatClient) ReadPump() {
	defer func() {
		c.Room.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			break
		}

		var payload WsPayload
		if err := json.Unmarshal(message, &payload); err == nil {
			if payload.Action == "join_room" {
				c.Username = payload.Username
				c.UserID = payload.UserID
				c.Room.Broadcast <- message
				c.Room.TriggerList <- true
				continue
			}

			if payload.Action == "chat_message" && payload.Content != "" {
				userID, parseErr := uuid.Parse(c.UserID)
				if parseErr == nil {
					msg := chat.Message{
						ID:        uuid.New(),
						RoomID:    c.Room.ID,
						UserID:    userID,
						Username:  c.Username,
						Body:      payload.Content,
						CreatedAt: time.Now().UTC(),
					}
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					if saveErr := c.Room.Manager.SaveMessage(ctx, msg); saveErr != nil {
						log.Printf("[Room %s] failed to save message: %v", c.Room.ID, saveErr)
					}
					cancel()
				}
				c.Room.Broadcast <- message
				continue
			}
		}

		// Anything unrecognised is relayed as-is
		c.Room.Broadcast <- message
	}
}

// WritePump handles messages going TO the frontend
func (c *ChatClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The room closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			// Heartbeat: keep connection alive
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
