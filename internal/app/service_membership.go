package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/badoux/checkmail"

	"devhub/api/internal/authpw"
	"devhub/api/internal/rbac"
	"devhub/api/internal/search"
	"devhub/api/internal/store"
	"devhub/api/internal/util"
)

// CreateWorkspace creates a workspace and records the creator as its active
// owner member.
func (s *Service) CreateWorkspace(ctx context.Context, session Session, name, description string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	ws := store.Workspace{
		ID:          util.NewID("ws"),
		Name:        name,
		Description: strings.TrimSpace(description),
		OwnerID:     session.UserID,
	}
	if err := s.store.InsertWorkspace(ctx, ws); err != nil {
		return nil, err
	}
	if err := s.store.InsertOwnerMembership(ctx, util.NewID("mem"), ws.ID, session.Email, session.UserID); err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.IndexWorkspace(search.WorkspaceRecord{
			ID:          ws.ID,
			Name:        ws.Name,
			Description: ws.Description,
		})
	}

	return map[string]any{
		"ok": true,
		"workspace": map[string]any{
			"id":          ws.ID,
			"name":        ws.Name,
			"description": ws.Description,
			"owner_id":    ws.OwnerID,
		},
	}, nil
}

// GetWorkspaceDetail returns a workspace with its member list. Only members
// may see it.
func (s *Service) GetWorkspaceDetail(ctx context.Context, session Session, workspaceID string) (map[string]any, error) {
	ws, role, err := s.workspaceRole(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !rbac.Can(role, rbac.ActionRead) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	members, err := s.store.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	memberPayload := make([]map[string]any, 0, len(members))
	for _, m := range members {
		entry := map[string]any{
			"email":      m.Email,
			"role":       m.Role,
			"status":     m.Status,
			"invited_at": m.InvitedAt,
		}
		if m.UserID != nil {
			entry["user_id"] = *m.UserID
		}
		memberPayload = append(memberPayload, entry)
	}

	return map[string]any{
		"workspace": map[string]any{
			"id":          ws.ID,
			"name":        ws.Name,
			"description": ws.Description,
			"owner_id":    ws.OwnerID,
			"created_at":  ws.CreatedAt,
		},
		"members": memberPayload,
	}, nil
}

// DeleteWorkspace removes a workspace. Owner only; memberships, messages,
// and file records cascade.
func (s *Service) DeleteWorkspace(ctx context.Context, session Session, workspaceID string) error {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	if ws.OwnerID != session.UserID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner can delete a workspace", nil)
	}

	// Remove stored objects before the metadata rows cascade away.
	if s.files != nil {
		objects, err := s.store.ListFileObjects(ctx, workspaceID)
		if err == nil {
			for _, obj := range objects {
				if err := s.files.Remove(ctx, obj.ObjectKey); err != nil {
					log.Printf("delete workspace %s: remove object %s: %v", workspaceID, obj.ObjectKey, err)
				}
			}
		}
	}

	if err := s.store.DeleteWorkspace(ctx, workspaceID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteWorkspace(workspaceID)
	}
	return nil
}

// InviteMember invites an email address into a workspace. The membership row
// is upserted pending; a repeated invite refreshes the row without creating
// a second one, and an active membership is never downgraded.
func (s *Service) InviteMember(ctx context.Context, session Session, workspaceID, inviteeEmail, message string) (map[string]any, error) {
	inviteeEmail = strings.TrimSpace(inviteeEmail)
	if inviteeEmail == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email is required", nil)
	}
	if err := checkmail.ValidateFormat(inviteeEmail); err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email is not valid", nil)
	}

	ws, role, err := s.workspaceRole(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !rbac.Can(role, rbac.ActionInvite) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner can invite members", nil)
	}

	existing, err := s.store.GetMembership(ctx, workspaceID, inviteeEmail)
	if err == nil && existing.Status == store.MembershipActive {
		return map[string]any{
			"ok":        true,
			"msg":       "Already a member of this workspace",
			"workspace": ws.Name,
			"invitee":   inviteeEmail,
		}, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// Provision the identity before any membership write. An existing
	// account is fine; any other provider failure aborts the invite.
	if s.authpw != nil {
		if _, err := s.authpw.InviteByEmail(ctx, inviteeEmail); err != nil && !errors.Is(err, authpw.ErrAlreadyRegistered) {
			return nil, domainError(http.StatusBadGateway, "INVITE_FAILED", "Could not provision invited account", nil)
		}
	}

	membership := store.Membership{
		ID:          util.NewID("mem"),
		WorkspaceID: workspaceID,
		Email:       inviteeEmail,
		Role:        store.RoleMember,
		InvitedBy:   session.UserID,
		Message:     strings.TrimSpace(message),
	}
	if err := s.store.UpsertInvitation(ctx, membership); err != nil {
		return nil, err
	}

	s.notifyInvitee(ws, session, inviteeEmail, membership.Message)

	return map[string]any{
		"ok":        true,
		"msg":       fmt.Sprintf("Invitation sent to %s", inviteeEmail),
		"workspace": ws.Name,
		"invitee":   inviteeEmail,
	}, nil
}

// notifyInvitee sends the invitation email in the background. Failures are
// logged and never affect the invite.
func (s *Service) notifyInvitee(ws store.Workspace, session Session, inviteeEmail, message string) {
	if !s.SMTPConfigured() {
		return
	}
	acceptURL := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/invitations"
	go func() {
		if err := s.email.SendInvitationEmail(inviteeEmail, session.UserName, ws.Name, message, acceptURL); err != nil {
			log.Printf("invite email to %s for workspace %s: %v", inviteeEmail, ws.ID, err)
		}
	}()
}

// AcceptInvitation moves the caller's pending membership to active. The
// transition happens exactly once; accepting an already-active membership is
// an idempotent success.
func (s *Service) AcceptInvitation(ctx context.Context, session Session, workspaceID string) (map[string]any, error) {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	membership, err := s.store.GetMembership(ctx, workspaceID, session.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NO_PENDING_INVITATION", "No pending invitation for this workspace", nil)
		}
		return nil, err
	}

	switch membership.Status {
	case store.MembershipActive:
		return acceptedPayload(ws, "Already a member of this workspace"), nil
	case store.MembershipPending:
		won, err := s.store.ActivateMembership(ctx, workspaceID, session.Email, session.UserID)
		if err != nil {
			return nil, err
		}
		if won {
			return acceptedPayload(ws, fmt.Sprintf("Joined %s", ws.Name)), nil
		}
		// Lost a race: someone else completed the transition between our
		// read and the update. Re-read to confirm before reporting success.
		current, err := s.store.GetMembership(ctx, workspaceID, session.Email)
		if err == nil && current.Status == store.MembershipActive {
			return acceptedPayload(ws, "Already a member of this workspace"), nil
		}
		return nil, domainError(http.StatusConflict, "INVALID_STATE", "Invitation is no longer pending", nil)
	default:
		return nil, domainError(http.StatusConflict, "INVALID_STATE", "Membership is in an unexpected state", nil)
	}
}

func acceptedPayload(ws store.Workspace, msg string) map[string]any {
	return map[string]any{
		"ok":           true,
		"msg":          msg,
		"workspace":    ws.Name,
		"workspace_id": ws.ID,
	}
}

// DeclineInvitation deletes the caller's pending membership row. An active
// membership is never touched.
func (s *Service) DeclineInvitation(ctx context.Context, session Session, workspaceID string) (map[string]any, error) {
	if _, err := s.store.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	removed, err := s.store.DeletePendingMembership(ctx, workspaceID, session.Email)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, domainError(http.StatusNotFound, "NO_PENDING_INVITATION", "No pending invitation for this workspace", nil)
	}
	return map[string]any{"ok": true}, nil
}

// RemoveMember deletes a membership row. Owner only; removing an absent
// member succeeds, removing the owner's own row is rejected.
func (s *Service) RemoveMember(ctx context.Context, session Session, workspaceID, targetEmail string) (map[string]any, error) {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws.OwnerID != session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner can remove members", nil)
	}
	targetEmail = strings.TrimSpace(targetEmail)
	if targetEmail == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email is required", nil)
	}
	if targetEmail == session.Email {
		return nil, domainError(http.StatusConflict, "INVALID_STATE", "Owners cannot remove their own membership", nil)
	}

	if err := s.store.DeleteMembership(ctx, workspaceID, targetEmail); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// ListWorkspaces returns the set of workspaces the caller owns or is an
// active member of.
func (s *Service) ListWorkspaces(ctx context.Context, session Session) (map[string]any, error) {
	items, err := s.store.ListAccessibleWorkspaces(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	workspaces := make([]map[string]any, 0, len(items))
	for _, item := range items {
		workspaces = append(workspaces, map[string]any{
			"id":          item.ID,
			"name":        item.Name,
			"description": item.Description,
			"owner_id":    item.OwnerID,
			"created_at":  item.CreatedAt,
			"membership": map[string]any{
				"status": item.MembershipStatus,
				"role":   item.MembershipRole,
			},
		})
	}

	return map[string]any{"workspaces": workspaces}, nil
}

// ListInvitations returns the caller's pending invitations across all
// workspaces.
func (s *Service) ListInvitations(ctx context.Context, session Session) (map[string]any, error) {
	items, err := s.store.ListPendingInvitations(ctx, session.Email)
	if err != nil {
		return nil, err
	}

	invitations := make([]map[string]any, 0, len(items))
	for _, item := range items {
		invitations = append(invitations, map[string]any{
			"workspace_id":          item.WorkspaceID,
			"workspace_name":        item.WorkspaceName,
			"workspace_description": item.WorkspaceDescription,
			"message":               item.Message,
			"inviter_email":         item.InviterEmail,
			"inviter_name":          item.InviterName,
			"invited_at":            item.InvitedAt,
		})
	}

	return map[string]any{"invitations": invitations}, nil
}
