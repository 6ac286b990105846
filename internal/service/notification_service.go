package service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"storyloom/internal/model"
	"storyloom/internal/repository"
	"storyloom/internal/util"
)

type NotificationService interface {
	SendCommentReplyNotification(receiverID string, comment *model.Comment) error
	SendChapterCommentNotification(receiverID string, comment *model.Comment) error
	SendChapterDecisionNotification(receiverID string, chapter *model.Chapter, status string) error
	GetNotificationsByUserID(userID string, limit, offset int) ([]*model.Notification, error)
	GetUnreadCount(userID string) (int64, error)
	MarkAsRead(notificationID, userID string) error
	MarkAllAsRead(userID string) error
	DeleteNotification(notificationID, userID string) error
	SetWSHub(hub interface {
		BroadcastToUser(string, map[string]interface{})
	})
}

type notificationService struct {
	notifRepo repository.NotificationRepository
	rabbitMQ  *util.RabbitMQClient
	wsHub     interface {
		BroadcastToUser(string, map[string]interface{})
	}
}

// NotificationMessage represents the message structure on the queue
type NotificationMessage struct {
	UserID    string    `json:"user_id"`
	SenderID  *string   `json:"sender_id,omitempty"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	TargetID  *string   `json:"target_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	NotificationQueueName = "notification_queue"
	NotificationExchange  = "notification_exchange"
	NotificationRouting   = "notification"
)

func NewNotificationService(notifRepo repository.NotificationRepository, rabbitMQ *util.RabbitMQClient) NotificationService {
	return &notificationService{
		notifRepo: notifRepo,
		rabbitMQ:  rabbitMQ,
	}
}

// SetWSHub sets the WebSocket hub used as the direct-push fallback when
// RabbitMQ is unavailable
func (s *notificationService) SetWSHub(hub interface {
	BroadcastToUser(string, map[string]interface{})
}) {
	s.wsHub = hub
}

// sendNotification saves the notification and hands it to the queue; when no
// queue is available it is pushed over the WebSocket hub directly.
func (s *notificationService) sendNotification(userID, notifType, title, message string, senderID, targetID *string) error {
	notification := &model.Notification{
		UserID:   userID,
		SenderID: senderID,
		Type:     notifType,
		Title:    title,
		Message:  message,
		TargetID: targetID,
	}
	if err := s.notifRepo.Create(notification); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	msg := NotificationMessage{
		UserID:    userID,
		SenderID:  senderID,
		Type:      notifType,
		Title:     title,
		Message:   message,
		TargetID:  targetID,
		Timestamp: time.Now(),
	}

	if s.rabbitMQ != nil {
		msgJSON, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := s.rabbitMQ.Publish(NotificationExchange, NotificationRouting, msgJSON); err != nil {
			log.Printf("Failed to publish notification to RabbitMQ: %v", err)
			// Notification is already saved; fall through to direct push
		} else {
			return nil
		}
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastToUser(userID, map[string]interface{}{
			"id":         notification.ID,
			"user_id":    notification.UserID,
			"type":       notification.Type,
			"title":      notification.Title,
			"message":    notification.Message,
			"target_id":  notification.TargetID,
			"is_read":    notification.IsRead,
			"created_at": notification.CreatedAt.Format(time.RFC3339),
		})
	}
	return nil
}

// SendCommentReplyNotification tells a root author someone replied
func (s *notificationService) SendCommentReplyNotification(receiverID string, comment *model.Comment) error {
	title := "New Reply"
	message := fmt.Sprintf("%s replied to your comment", comment.AuthorName)
	return s.sendNotification(receiverID, model.NotificationTypeCommentReply, title, message, comment.AuthorID, &comment.ID)
}

// SendChapterCommentNotification tells the work's author about a new root
// comment on one of their chapters
func (s *notificationService) SendChapterCommentNotification(receiverID string, comment *model.Comment) error {
	title := "New Comment"
	message := fmt.Sprintf("%s commented on your chapter", comment.AuthorName)
	return s.sendNotification(receiverID, model.NotificationTypeChapterComment, title, message, comment.AuthorID, &comment.ID)
}

// SendChapterDecisionNotification tells an author their chapter was
// approved or rejected
func (s *notificationService) SendChapterDecisionNotification(receiverID string, chapter *model.Chapter, status string) error {
	title := "Chapter Review"
	message := fmt.Sprintf("Your chapter %q was %s", chapter.Title, status)
	return s.sendNotification(receiverID, model.NotificationTypeChapterDecision, title, message, nil, &chapter.ID)
}

// GetNotificationsByUserID lists a user's notifications
func (s *notificationService) GetNotificationsByUserID(userID string, limit, offset int) ([]*model.Notification, error) {
	return s.notifRepo.FindByUserID(userID, limit, offset)
}

// GetUnreadCount counts unread notifications
func (s *notificationService) GetUnreadCount(userID string) (int64, error) {
	return s.notifRepo.CountUnread(userID)
}

// MarkAsRead marks one notification read
func (s *notificationService) MarkAsRead(notificationID, userID string) error {
	return s.notifRepo.MarkAsRead(notificationID, userID)
}

// MarkAllAsRead marks all of a user's notifications read
func (s *notificationService) MarkAllAsRead(userID string) error {
	return s.notifRepo.MarkAllAsRead(userID)
}

// DeleteNotification removes one notification
func (s *notificationService) DeleteNotification(notificationID, userID string) error {
	return s.notifRepo.Delete(notificationID, userID)
}
