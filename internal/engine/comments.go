package engine

import (
	"context"

	"boardline/internal/domain"
	"boardline/internal/events"
)

type CommentOptions struct {
	TicketID string
	Author   string
	Content  string
}

// AddComment appends a top-level comment to a ticket and records a
// commented activity.
func (e Engine) AddComment(ctx context.Context, opts CommentOptions) (domain.Comment, error) {
	if opts.Content == "" {
		return domain.Comment{}, invalid("comment content is required")
	}
	if _, err := e.GetTicket(ctx, opts.TicketID); err != nil {
		return domain.Comment{}, err
	}
	c, err := e.Store.CreateComment(ctx, domain.Comment{
		TicketID:  opts.TicketID,
		Author:    opts.Author,
		Content:   opts.Content,
		CreatedAt: e.now(),
	})
	if err != nil {
		return domain.Comment{}, err
	}
	if err := e.audit(ctx, domain.Activity{
		TicketID: opts.TicketID,
		Actor:    opts.Author,
		Action:   domain.ActionCommented,
		Changes:  map[string]domain.Change{"comment_id": {New: c.ID}},
	}); err != nil {
		return domain.Comment{}, err
	}
	e.publish(events.CommentCreated, c)
	return c, nil
}

// ReplyToComment appends a threaded reply under an existing comment.
// Replies do not generate activities; only the top-level comment does.
func (e Engine) ReplyToComment(ctx context.Context, ticketID, parentCommentID, author, content string) (domain.Comment, error) {
	if content == "" {
		return domain.Comment{}, invalid("comment content is required")
	}
	comments, err := e.ListComments(ctx, ticketID)
	if err != nil {
		return domain.Comment{}, err
	}
	found := false
	for _, c := range comments {
		if c.ID == parentCommentID {
			found = true
			break
		}
	}
	if !found {
		return domain.Comment{}, notFound("comment", parentCommentID)
	}
	c, err := e.Store.CreateComment(ctx, domain.Comment{
		TicketID:  ticketID,
		Author:    author,
		Content:   content,
		ParentID:  &parentCommentID,
		CreatedAt: e.now(),
	})
	if err != nil {
		return domain.Comment{}, err
	}
	e.publish(events.CommentCreated, c)
	return c, nil
}

// ListComments returns a ticket's comments in creation order.
func (e Engine) ListComments(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	if _, err := e.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return e.Store.ListComments(ctx, ticketID)
}

type AttachmentOptions struct {
	TicketID     string
	Filename     string
	OriginalName string
	MimeType     string
	Size         int64
	StorageRef   string
	UploadedBy   string
}

// AddAttachment records attachment metadata against a ticket. The bytes
// themselves live wherever StorageRef points.
func (e Engine) AddAttachment(ctx context.Context, opts AttachmentOptions) (domain.Attachment, error) {
	if opts.Filename == "" {
		return domain.Attachment{}, invalid("attachment filename is required")
	}
	if _, err := e.GetTicket(ctx, opts.TicketID); err != nil {
		return domain.Attachment{}, err
	}
	return e.Store.CreateAttachment(ctx, domain.Attachment{
		TicketID:     opts.TicketID,
		Filename:     opts.Filename,
		OriginalName: opts.OriginalName,
		MimeType:     opts.MimeType,
		Size:         opts.Size,
		StorageRef:   opts.StorageRef,
		UploadedBy:   opts.UploadedBy,
		CreatedAt:    e.now(),
	})
}

func (e Engine) ListAttachments(ctx context.Context, ticketID string) ([]domain.Attachment, error) {
	if _, err := e.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return e.Store.ListAttachments(ctx, ticketID)
}
