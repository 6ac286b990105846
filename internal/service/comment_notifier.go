package service

import (
	"context"
	"log"

	"storyloom/internal/model"
	"storyloom/internal/repository"
)

// CommentNotifier fans comment events out into persisted notifications.
// Replies notify the parent's author, root comments notify the chapter's
// work author. Guests never receive notifications and nobody is notified
// about their own comment.
type CommentNotifier struct {
	notifSvc    NotificationService
	chapterRepo repository.ChapterRepository
}

func NewCommentNotifier(notifSvc NotificationService, chapterRepo repository.ChapterRepository) *CommentNotifier {
	return &CommentNotifier{
		notifSvc:    notifSvc,
		chapterRepo: chapterRepo,
	}
}

// CommentPosted is called by the comment engine after a comment is stored
func (n *CommentNotifier) CommentPosted(c *model.Comment, parent *model.Comment) {
	if parent != nil {
		if parent.AuthorID == nil {
			return // guest parent, nobody to notify
		}
		if c.AuthorID != nil && *c.AuthorID == *parent.AuthorID {
			return
		}
		if err := n.notifSvc.SendCommentReplyNotification(*parent.AuthorID, c); err != nil {
			log.Printf("Failed to send reply notification: %v", err)
		}
		return
	}

	ownerID, err := n.chapterRepo.ThreadOwner(context.Background(), c.ChapterID)
	if err != nil {
		log.Printf("Failed to resolve chapter owner for notification: %v", err)
		return
	}
	if c.AuthorID != nil && *c.AuthorID == ownerID {
		return
	}
	if err := n.notifSvc.SendChapterCommentNotification(ownerID, c); err != nil {
		log.Printf("Failed to send chapter comment notification: %v", err)
	}
}
