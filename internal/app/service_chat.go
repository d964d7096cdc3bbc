package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"

	"devhub/api/internal/rbac"
	"devhub/api/internal/search"
	"devhub/api/internal/store"
	"devhub/api/internal/util"
)

const maxMessageLength = 4000

// SendMessage stores a chat message and fans it out over the realtime hub.
// An empty recipientID targets the workspace channel; otherwise the message
// is a direct message to another member.
func (s *Service) SendMessage(ctx context.Context, session Session, workspaceID, recipientID, body string) (map[string]any, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "message body is required", nil)
	}
	if len(body) > maxMessageLength {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "message body is too long", nil)
	}

	ws, role, err := s.workspaceRole(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !rbac.Can(role, rbac.ActionWrite) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	if recipientID != "" {
		if recipientID == session.UserID {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "cannot send a direct message to yourself", nil)
		}
		if _, recipientRole, err := s.workspaceRole(ctx, workspaceID, recipientID); err != nil || recipientRole == "" {
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Recipient is not a member of this workspace", nil)
		}
	}

	msg := store.ChatMessage{
		ID:          util.NewID("msg"),
		WorkspaceID: workspaceID,
		RecipientID: recipientID,
		SenderID:    session.UserID,
		SenderName:  session.UserName,
		Body:        body,
	}
	if err := s.store.InsertChatMessage(ctx, msg); err != nil {
		return nil, err
	}

	if s.hub != nil {
		if err := s.hub.PublishMessage(ctx, msg); err != nil {
			log.Printf("publish message %s to workspace %s: %v", msg.ID, ws.ID, err)
		}
	}
	if s.search != nil && recipientID == "" {
		s.search.IndexMessage(search.MessageRecord{
			ID:          msg.ID,
			Body:        msg.Body,
			SenderName:  msg.SenderName,
			WorkspaceID: msg.WorkspaceID,
		})
	}

	return map[string]any{
		"ok":      true,
		"message": messagePayload(msg),
	}, nil
}

// ChannelHistory returns the workspace channel backlog, oldest first.
func (s *Service) ChannelHistory(ctx context.Context, session Session, workspaceID string, limit int) (map[string]any, error) {
	_, role, err := s.workspaceRole(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !rbac.Can(role, rbac.ActionRead) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	messages, err := s.store.ListChannelMessages(ctx, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"messages": messagePayloads(messages)}, nil
}

// DirectHistory returns the two-party direct backlog between the caller and
// another member, oldest first.
func (s *Service) DirectHistory(ctx context.Context, session Session, workspaceID, otherUserID string, limit int) (map[string]any, error) {
	if otherUserID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "user is required", nil)
	}
	_, role, err := s.workspaceRole(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !rbac.Can(role, rbac.ActionRead) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	messages, err := s.store.ListDirectMessages(ctx, workspaceID, session.UserID, otherUserID, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"messages": messagePayloads(messages)}, nil
}

func messagePayload(msg store.ChatMessage) map[string]any {
	payload := map[string]any{
		"id":           msg.ID,
		"workspace_id": msg.WorkspaceID,
		"sender_id":    msg.SenderID,
		"sender_name":  msg.SenderName,
		"body":         msg.Body,
		"created_at":   msg.CreatedAt,
	}
	if msg.RecipientID != "" {
		payload["recipient_id"] = msg.RecipientID
	}
	return payload
}

func messagePayloads(messages []store.ChatMessage) []map[string]any {
	items := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		items = append(items, messagePayload(msg))
	}
	return items
}
