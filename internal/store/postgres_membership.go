package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertWorkspace(ctx context.Context, ws Workspace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, description, owner_id)
		VALUES ($1, $2, $3, $4)
	`, ws.ID, ws.Name, ws.Description, ws.OwnerID)
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	var ws Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, owner_id, created_at, updated_at
		FROM workspaces
		WHERE id=$1
	`, workspaceID).Scan(&ws.ID, &ws.Name, &ws.Description, &ws.OwnerID, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return Workspace{}, err
	}
	return ws, nil
}

// DeleteWorkspace removes a workspace; memberships, chat messages, and file
// records cascade via foreign keys.
func (s *PostgresStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id=$1`, workspaceID)
	if err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	return nil
}

// UpsertInvitation creates or refreshes the pending membership for a
// (workspace, email) pair. The conflict update is predicated on the row
// still being pending so a repeated invite can never regress an active
// membership.
func (s *PostgresStore) UpsertInvitation(ctx context.Context, m Membership) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (id, workspace_id, email, role, status, invited_by, message)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)
		ON CONFLICT (workspace_id, email) DO UPDATE
		SET invited_by=EXCLUDED.invited_by, message=EXCLUDED.message, invited_at=NOW()
		WHERE memberships.status='pending'
	`, m.ID, m.WorkspaceID, m.Email, m.Role, m.InvitedBy, m.Message)
	if err != nil {
		return fmt.Errorf("upsert invitation: %w", err)
	}
	return nil
}

// InsertOwnerMembership records the creator's active owner row for a new
// workspace.
func (s *PostgresStore) InsertOwnerMembership(ctx context.Context, id, workspaceID, email, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (id, workspace_id, email, user_id, role, status, invited_by, accepted_at)
		VALUES ($1, $2, $3, $4, 'owner', 'active', $4, NOW())
	`, id, workspaceID, email, userID)
	if err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMembership(ctx context.Context, workspaceID, email string) (Membership, error) {
	var m Membership
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, email, user_id, role, status, invited_by, COALESCE(message, ''), invited_at, accepted_at
		FROM memberships
		WHERE workspace_id=$1 AND email=$2
	`, workspaceID, email).Scan(&m.ID, &m.WorkspaceID, &m.Email, &m.UserID, &m.Role, &m.Status, &m.InvitedBy, &m.Message, &m.InvitedAt, &m.AcceptedAt)
	if err != nil {
		return Membership{}, err
	}
	return m, nil
}

// ActivateMembership performs the pending → active transition as a single
// conditional update. The returned bool reports whether this caller won the
// transition; a false result with no error means the row was missing or no
// longer pending at write time.
func (s *PostgresStore) ActivateMembership(ctx context.Context, workspaceID, email, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE memberships
		SET status='active', user_id=$3, accepted_at=NOW()
		WHERE workspace_id=$1 AND email=$2 AND status='pending'
	`, workspaceID, email, userID)
	if err != nil {
		return false, fmt.Errorf("activate membership: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("activate membership rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteMembership removes the row for (workspace, email). Deleting an
// absent row is a no-op success.
func (s *PostgresStore) DeleteMembership(ctx context.Context, workspaceID, email string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM memberships WHERE workspace_id=$1 AND email=$2
	`, workspaceID, email)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}

// DeletePendingMembership removes the row only while it is still pending.
// Used by decline so a race with acceptance never drops an active member.
func (s *PostgresStore) DeletePendingMembership(ctx context.Context, workspaceID, email string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM memberships WHERE workspace_id=$1 AND email=$2 AND status='pending'
	`, workspaceID, email)
	if err != nil {
		return false, fmt.Errorf("delete pending membership: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete pending membership rows: %w", err)
	}
	return affected > 0, nil
}

// ListAccessibleWorkspaces returns the set of workspaces the user owns or
// holds an active membership in. DISTINCT ON keeps the result a set even if
// duplicate membership rows exist upstream.
func (s *PostgresStore) ListAccessibleWorkspaces(ctx context.Context, userID string) ([]WorkspaceAccess, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (w.id)
			w.id, w.name, w.description, w.owner_id, w.created_at, w.updated_at,
			CASE WHEN w.owner_id=$1 THEN 'active' ELSE COALESCE(m.status, 'active') END,
			CASE WHEN w.owner_id=$1 THEN 'owner' ELSE COALESCE(m.role, 'member') END
		FROM workspaces w
		LEFT JOIN memberships m ON m.workspace_id = w.id AND m.user_id = $1 AND m.status='active'
		WHERE w.owner_id=$1 OR m.user_id IS NOT NULL
		ORDER BY w.id, w.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accessible workspaces: %w", err)
	}
	defer rows.Close()

	items := make([]WorkspaceAccess, 0)
	for rows.Next() {
		var item WorkspaceAccess
		if err := rows.Scan(
			&item.ID,
			&item.Name,
			&item.Description,
			&item.OwnerID,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.MembershipStatus,
			&item.MembershipRole,
		); err != nil {
			return nil, fmt.Errorf("scan accessible workspace: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accessible workspaces: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListPendingInvitations(ctx context.Context, email string) ([]Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.workspace_id, w.name, w.description, m.email, COALESCE(m.message, ''),
			COALESCE(u.email, ''), COALESCE(u.display_name, ''), m.invited_at
		FROM memberships m
		JOIN workspaces w ON w.id = m.workspace_id
		LEFT JOIN users u ON u.id = m.invited_by
		WHERE m.email=$1 AND m.status='pending'
		ORDER BY m.invited_at DESC
	`, email)
	if err != nil {
		return nil, fmt.Errorf("list pending invitations: %w", err)
	}
	defer rows.Close()

	items := make([]Invitation, 0)
	for rows.Next() {
		var item Invitation
		if err := rows.Scan(
			&item.WorkspaceID,
			&item.WorkspaceName,
			&item.WorkspaceDescription,
			&item.Email,
			&item.Message,
			&item.InviterEmail,
			&item.InviterName,
			&item.InvitedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pending invitation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending invitations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, workspaceID string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, email, user_id, role, status, invited_by, COALESCE(message, ''), invited_at, accepted_at
		FROM memberships
		WHERE workspace_id=$1
		ORDER BY invited_at ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]Membership, 0)
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.Email, &m.UserID, &m.Role, &m.Status, &m.InvitedBy, &m.Message, &m.InvitedAt, &m.AcceptedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

// GetActiveMembershipByUser resolves a user's active membership in a
// workspace, used by authorization checks for chat and files.
func (s *PostgresStore) GetActiveMembershipByUser(ctx context.Context, workspaceID, userID string) (Membership, error) {
	var m Membership
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, email, user_id, role, status, invited_by, COALESCE(message, ''), invited_at, accepted_at
		FROM memberships
		WHERE workspace_id=$1 AND user_id=$2 AND status='active'
	`, workspaceID, userID).Scan(&m.ID, &m.WorkspaceID, &m.Email, &m.UserID, &m.Role, &m.Status, &m.InvitedBy, &m.Message, &m.InvitedAt, &m.AcceptedAt)
	if err != nil {
		return Membership{}, err
	}
	return m, nil
}
