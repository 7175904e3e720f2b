// internal/notifications/push.go
// Push-delivery collaborator. Best-effort: failures are logged and never
// block notification persistence.

package notifications

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type PushService interface {
	SendNotification(ctx context.Context, userID int64, notification *PushNotification) error
}

type PushNotification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type fcmPushService struct {
	client *messaging.Client
	repo   Repository
}

// NewFCMPushService creates a push service backed by Firebase Cloud Messaging
func NewFCMPushService(ctx context.Context, credentialsPath string, repo Repository) (PushService, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &fcmPushService{client: client, repo: repo}, nil
}

// SendNotification delivers to every active device of the user
func (s *fcmPushService) SendNotification(ctx context.Context, userID int64, notification *PushNotification) error {
	tokens, err := s.repo.GetUserPushTokens(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	for _, token := range tokens {
		msg := &messaging.Message{
			Token: token.Token,
			Notification: &messaging.Notification{
				Title: notification.Title,
				Body:  notification.Body,
			},
			Data: notification.Data,
		}

		if _, err := s.client.Send(ctx, msg); err != nil {
			log.Printf("Failed to send push notification to user %d: %v", userID, err)

			// Drop tokens the gateway no longer recognizes
			if messaging.IsRegistrationTokenNotRegistered(err) {
				s.repo.DeletePushToken(ctx, token.Token)
			}
		}
	}
	return nil
}

// MockPushService logs instead of delivering, for development and tests
type mockPushService struct{}

func NewMockPushService() PushService {
	return &mockPushService{}
}

func (m *mockPushService) SendNotification(ctx context.Context, userID int64, notification *PushNotification) error {
	log.Printf("Mock push to user %d: %s - %s", userID, notification.Title, notification.Body)
	return nil
}
