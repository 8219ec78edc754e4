package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"savquestAPI/internal/notification"
)

type NotificationService struct {
	db         *pgxpool.Pool
	dispatcher *NotificationDispatcher
}

func NewNotificationService(db *pgxpool.Pool) *NotificationService {
	s := &NotificationService{db: db}
	s.dispatcher = NewNotificationDispatcher(s)
	return s
}

// SetPushProvider injects the real FCM provider from main.go.
func (s *NotificationService) SetPushProvider(provider PushNotificationProvider) {
	s.dispatcher.SetPushProvider(provider)
}

func (s *NotificationService) Stop() {
	s.dispatcher.Stop()
}

func (s *NotificationService) CreateNotification(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error) {
	if req.Priority == "" {
		req.Priority = notification.PriorityNormal
	}

	prefs, err := s.GetUserPreferencesByUUID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	if enabled, ok := prefs.EnabledTypes[string(req.Type)]; ok && !enabled {
		log.Printf("Notification type %s disabled for user %s, skipping", req.Type, req.UserID)
		return nil, nil
	}

	notif := &notification.Notification{
		ID:           uuid.New(),
		UserID:       req.UserID,
		Type:         req.Type,
		Priority:     req.Priority,
		Status:       notification.StatusPending,
		Title:        req.Title,
		Body:         req.Body,
		Data:         req.Data,
		ScheduledFor: req.ScheduledFor,
		CreatedAt:    time.Now().UTC(),
	}

	dataJSON, _ := json.Marshal(notif.Data)
	query := `
		INSERT INTO notifications (id, user_id, type, priority, status, title, body, data, scheduled_for, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.Exec(ctx, query,
		notif.ID, notif.UserID, notif.Type, notif.Priority, notif.Status,
		notif.Title, notif.Body, dataJSON, notif.ScheduledFor, notif.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}

	// Scheduled notifications stay pending until the dispatcher's ticker
	// picks them up; immediate ones go straight to the queue.
	if notif.ScheduledFor == nil {
		s.dispatcher.DispatchNotification(ctx, notif, prefs)
	}
	return notif, nil
}

func (s *NotificationService) GetNotifications(ctx context.Context, clerkID string, page, pageSize int, unreadOnly bool) (*notification.NotificationListResponse, error) {
	userID, err := s.userIDForClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := `
		SELECT id, user_id, type, priority, status, title, body, data, scheduled_for, created_at, read_at
		FROM notifications
		WHERE user_id = $1
	`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(ctx, query, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	resp := &notification.NotificationListResponse{Page: page, PageSize: pageSize}
	for rows.Next() {
		var n notification.Notification
		var dataJSON []byte
		err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Priority, &n.Status,
			&n.Title, &n.Body, &dataJSON, &n.ScheduledFor, &n.CreatedAt, &n.ReadAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if len(dataJSON) > 0 {
			_ = json.Unmarshal(dataJSON, &n.Data)
		}
		resp.Notifications = append(resp.Notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	resp.UnreadCount, _ = s.unreadCount(ctx, userID)
	resp.TotalCount = len(resp.Notifications)
	return resp, nil
}

func (s *NotificationService) GetUnreadCount(ctx context.Context, clerkID string) (int, error) {
	userID, err := s.userIDForClerkID(ctx, clerkID)
	if err != nil {
		return 0, err
	}
	return s.unreadCount(ctx, userID)
}

func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID uuid.UUID, clerkID string) error {
	userID, err := s.userIDForClerkID(ctx, clerkID)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE notifications SET status = 'read', read_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark as read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification not found")
	}
	return nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, clerkID string) error {
	userID, err := s.userIDForClerkID(ctx, clerkID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		UPDATE notifications SET status = 'read', read_at = NOW()
		WHERE user_id = $1 AND read_at IS NULL
	`, userID)
	return err
}

func (s *NotificationService) DeleteNotification(ctx context.Context, notificationID uuid.UUID, clerkID string) error {
	userID, err := s.userIDForClerkID(ctx, clerkID)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification not found")
	}
	return nil
}

func (s *NotificationService) GetUserPreferences(ctx context.Context, clerkID string) (*notification.NotificationPreferences, error) {
	userID, err := s.userIDForClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	return s.GetUserPreferencesByUUID(ctx, userID)
}

func (s *NotificationService) GetUserPreferencesByUUID(ctx context.Context, userID uuid.UUID) (*notification.NotificationPreferences, error) {
	prefs := &notification.NotificationPreferences{UserID: userID}
	var enabledTypesJSON []byte

	err := s.db.QueryRow(ctx, `
		SELECT push_enabled, in_app_enabled, enabled_types
		FROM notification_preferences WHERE user_id = $1
	`, userID).Scan(&prefs.PushEnabled, &prefs.InAppEnabled, &enabledTypesJSON)
	if err == pgx.ErrNoRows {
		return s.createDefaultPreferences(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	if len(enabledTypesJSON) > 0 {
		_ = json.Unmarshal(enabledTypesJSON, &prefs.EnabledTypes)
	}

	rows, err := s.db.Query(ctx,
		`SELECT token, platform FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get device tokens: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.Token, &t.Platform); err != nil {
			continue
		}
		prefs.DeviceTokens = append(prefs.DeviceTokens, t)
	}
	return prefs, nil
}

func (s *NotificationService) UpdateUserPreferences(ctx context.Context, clerkID string, req *notification.UpdatePreferencesRequest) (*notification.NotificationPreferences, error) {
	userID, err := s.userIDForClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	// Ensure a row exists before patching it.
	if _, err := s.GetUserPreferencesByUUID(ctx, userID); err != nil {
		return nil, err
	}

	if req.PushEnabled != nil {
		_, err = s.db.Exec(ctx,
			`UPDATE notification_preferences SET push_enabled = $1 WHERE user_id = $2`,
			*req.PushEnabled, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to update push_enabled: %w", err)
		}
	}
	if req.InAppEnabled != nil {
		_, err = s.db.Exec(ctx,
			`UPDATE notification_preferences SET in_app_enabled = $1 WHERE user_id = $2`,
			*req.InAppEnabled, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to update in_app_enabled: %w", err)
		}
	}
	if req.EnabledTypes != nil {
		enabledJSON, _ := json.Marshal(req.EnabledTypes)
		_, err = s.db.Exec(ctx,
			`UPDATE notification_preferences SET enabled_types = $1 WHERE user_id = $2`,
			enabledJSON, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to update enabled_types: %w", err)
		}
	}
	return s.GetUserPreferencesByUUID(ctx, userID)
}

func (s *NotificationService) RegisterDevice(ctx context.Context, clerkID string, req notification.RegisterDeviceRequest) error {
	userID, err := s.userIDForClerkID(ctx, clerkID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO device_tokens (user_id, token, platform, registered_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (token) DO UPDATE SET user_id = $1, platform = $3, registered_at = NOW()
	`, userID, req.Token, req.Platform)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (s *NotificationService) createDefaultPreferences(ctx context.Context, userID uuid.UUID) (*notification.NotificationPreferences, error) {
	prefs := &notification.NotificationPreferences{
		UserID:       userID,
		PushEnabled:  true,
		InAppEnabled: true,
		EnabledTypes: map[string]bool{},
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO notification_preferences (user_id, push_enabled, in_app_enabled, enabled_types)
		VALUES ($1, true, true, '{}')
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create default preferences: %w", err)
	}
	return prefs, nil
}

func (s *NotificationService) unreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID,
	).Scan(&count)
	return count, err
}

func (s *NotificationService) userIDForClerkID(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, fmt.Errorf("user not found")
		}
		return uuid.Nil, fmt.Errorf("failed to get user: %w", err)
	}
	return userID, nil
}
