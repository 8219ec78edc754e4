package utils

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"savquestAPI/internal/challenge"
	"savquestAPI/internal/notification"
)

// NotificationCreator is the one method the triggers below need from the
// notification service; keeping it an interface avoids dragging the whole
// service package in.
type NotificationCreator interface {
	CreateNotification(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error)
}

// ChallengeOutcomeChanged tells the user their challenge reached a terminal
// state. Nil notifier is allowed; the engine works silently without one.
func ChallengeOutcomeChanged(notifier NotificationCreator, c *challenge.Challenge) {
	if notifier == nil {
		return
	}

	var notifType notification.NotificationType
	var title, body string
	switch c.Status {
	case challenge.StatusCompleted:
		notifType = notification.TypeChallengeCompleted
		title = "Challenge complete!"
		body = fmt.Sprintf("You finished %q and earned %d points.", c.Title, c.RewardPoints)
	case challenge.StatusFailed:
		notifType = notification.TypeChallengeFailed
		title = "Challenge failed"
		body = fmt.Sprintf("%q didn't work out this time.", c.Title)
	case challenge.StatusExpired:
		notifType = notification.TypeChallengeExpired
		title = "Challenge ended"
		body = fmt.Sprintf("%q has run its course.", c.Title)
	default:
		return
	}

	req := &notification.CreateNotificationRequest{
		UserID:   c.UserID,
		Type:     notifType,
		Priority: notification.PriorityNormal,
		Title:    title,
		Body:     body,
		Data: map[string]any{
			"challenge_id":   c.ID.String(),
			"challenge_type": string(c.Type),
			"status":         string(c.Status),
		},
	}

	if _, err := notifier.CreateNotification(context.Background(), req); err != nil {
		log.Printf("Failed to create outcome notification for challenge %s: %v", c.ID, err)
	}
}

// NewChallengesAssigned announces freshly generated challenges.
func NewChallengesAssigned(notifier NotificationCreator, userID uuid.UUID, count int) {
	if notifier == nil || count <= 0 {
		return
	}

	req := &notification.CreateNotificationRequest{
		UserID:   userID,
		Type:     notification.TypeNewChallenge,
		Priority: notification.PriorityLow,
		Title:    "New challenges waiting",
		Body:     fmt.Sprintf("%d new challenges were added to your board.", count),
		Data:     map[string]any{"count": count},
	}

	if _, err := notifier.CreateNotification(context.Background(), req); err != nil {
		log.Printf("Failed to create new-challenge notification for user %s: %v", userID, err)
	}
}
