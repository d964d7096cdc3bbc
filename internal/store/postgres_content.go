package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertChatMessage(ctx context.Context, msg ChatMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, workspace_id, recipient_id, sender_id, body)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
	`, msg.ID, msg.WorkspaceID, msg.RecipientID, msg.SenderID, msg.Body)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// ListChannelMessages returns the workspace channel history, oldest first.
func (s *PostgresStore) ListChannelMessages(ctx context.Context, workspaceID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT m.id, m.workspace_id, COALESCE(m.recipient_id, '') AS recipient_id, m.sender_id, COALESCE(u.display_name, '') AS sender_name, m.body, m.created_at
			FROM chat_messages m
			LEFT JOIN users u ON u.id = m.sender_id
			WHERE m.workspace_id=$1 AND m.recipient_id IS NULL
			ORDER BY m.created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list channel messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ListDirectMessages returns the two-party direct history within a
// workspace, oldest first.
func (s *PostgresStore) ListDirectMessages(ctx context.Context, workspaceID, userA, userB string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT m.id, m.workspace_id, COALESCE(m.recipient_id, '') AS recipient_id, m.sender_id, COALESCE(u.display_name, '') AS sender_name, m.body, m.created_at
			FROM chat_messages m
			LEFT JOIN users u ON u.id = m.sender_id
			WHERE m.workspace_id=$1
			  AND ((m.sender_id=$2 AND m.recipient_id=$3) OR (m.sender_id=$3 AND m.recipient_id=$2))
			ORDER BY m.created_at DESC
			LIMIT $4
		) recent
		ORDER BY created_at ASC
	`, workspaceID, userA, userB, limit)
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanMessages(rows rowScanner) ([]ChatMessage, error) {
	items := make([]ChatMessage, 0)
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.WorkspaceID,
			&msg.RecipientID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.Body,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		items = append(items, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertFileObject(ctx context.Context, file FileObject) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_objects (id, workspace_id, name, content_type, size_bytes, object_key, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, file.ID, file.WorkspaceID, file.Name, file.ContentType, file.SizeBytes, file.ObjectKey, file.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert file object: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFileObject(ctx context.Context, workspaceID, fileID string) (FileObject, error) {
	var file FileObject
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, name, content_type, size_bytes, object_key, uploaded_by, created_at
		FROM file_objects
		WHERE workspace_id=$1 AND id=$2
	`, workspaceID, fileID).Scan(
		&file.ID,
		&file.WorkspaceID,
		&file.Name,
		&file.ContentType,
		&file.SizeBytes,
		&file.ObjectKey,
		&file.UploadedBy,
		&file.CreatedAt,
	)
	if err != nil {
		return FileObject{}, err
	}
	return file, nil
}

func (s *PostgresStore) ListFileObjects(ctx context.Context, workspaceID string) ([]FileObject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, name, content_type, size_bytes, object_key, uploaded_by, created_at
		FROM file_objects
		WHERE workspace_id=$1
		ORDER BY created_at DESC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list file objects: %w", err)
	}
	defer rows.Close()

	items := make([]FileObject, 0)
	for rows.Next() {
		var file FileObject
		if err := rows.Scan(
			&file.ID,
			&file.WorkspaceID,
			&file.Name,
			&file.ContentType,
			&file.SizeBytes,
			&file.ObjectKey,
			&file.UploadedBy,
			&file.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan file object: %w", err)
		}
		items = append(items, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file objects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteFileObject(ctx context.Context, workspaceID, fileID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM file_objects WHERE workspace_id=$1 AND id=$2`, workspaceID, fileID)
	if err != nil {
		return fmt.Errorf("delete file object: %w", err)
	}
	return nil
}
