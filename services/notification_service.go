package services

import (
	"context"
	"fmt"

	"cerbo-api/models"
)

// NotificationService exposes a user's in-app notifications.
type NotificationService struct {
	*core
}

func (s *NotificationService) List(ctx context.Context, actor Actor) ([]models.Notification, error) {
	if actor.ID == 0 {
		return nil, fmt.Errorf("%w: anonymous caller", ErrUnauthorized)
	}
	return s.store.ListNotifications(ctx, actor.ID)
}

func (s *NotificationService) MarkRead(ctx context.Context, actor Actor, notificationID uint) error {
	if actor.ID == 0 {
		return fmt.Errorf("%w: anonymous caller", ErrUnauthorized)
	}
	if err := s.store.MarkNotificationRead(ctx, actor.ID, notificationID); err != nil {
		return lookupErr(err, "notification", notificationID)
	}
	return nil
}
