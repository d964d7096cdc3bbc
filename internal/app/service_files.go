package app

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"devhub/api/internal/files"
	"devhub/api/internal/rbac"
	"devhub/api/internal/search"
	"devhub/api/internal/store"
	"devhub/api/internal/util"
)

const (
	maxUploadBytes    = 100 << 20 // 100 MiB
	downloadURLExpiry = 15 * time.Minute
)

// UploadFile stores the object bytes and records metadata for a workspace
// file. Only active members may upload.
func (s *Service) UploadFile(ctx context.Context, session Session, workspaceID, name, contentType string, size int64, r io.Reader) (map[string]any, error) {
	if s.files == nil {
		return nil, domainError(http.StatusServiceUnavailable, "FILES_UNAVAILABLE", "File storage is not configured", nil)
	}
	name = files.SanitizeName(strings.TrimSpace(name))
	if size <= 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file content is required", nil)
	}
	if size > maxUploadBytes {
		return nil, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the upload limit", nil)
	}

	_, role, err := s.workspaceRole(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !rbac.Can(role, rbac.ActionWrite) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	file := store.FileObject{
		ID:          util.NewID("file"),
		WorkspaceID: workspaceID,
		Name:        name,
		ContentType: contentType,
		SizeBytes:   size,
		UploadedBy:  session.UserID,
	}
	file.ObjectKey = files.ObjectKey(workspaceID, file.ID, name)

	if err := s.files.Upload(ctx, file.ObjectKey, r, size, contentType); err != nil {
		return nil, err
	}
	if err := s.store.InsertFileObject(ctx, file); err != nil {
		// Metadata write failed; don't leave an orphaned object behind.
		if removeErr := s.files.Remove(ctx, file.ObjectKey); removeErr != nil {
			log.Printf("rollback object %s: %v", file.ObjectKey, removeErr)
		}
		return nil, err
	}

	if s.search != nil {
		s.search.IndexFile(search.FileRecord{
			ID:          file.ID,
			Name:        file.Name,
			ContentType: file.ContentType,
			WorkspaceID: file.WorkspaceID,
		})
	}

	return map[string]any{
		"ok":   true,
		"file": filePayload(file),
	}, nil
}

// ListFiles returns the workspace's file metadata, newest first.
func (s *Service) ListFiles(ctx context.Context, session Session, workspaceID string) (map[string]any, error) {
	_, role, err := s.workspaceRole(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !rbac.Can(role, rbac.ActionRead) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	items, err := s.store.ListFileObjects(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, file := range items {
		payload = append(payload, filePayload(file))
	}
	return map[string]any{"files": payload}, nil
}

// FileDownloadURL returns a short-lived presigned URL for a workspace file.
func (s *Service) FileDownloadURL(ctx context.Context, session Session, workspaceID, fileID string) (map[string]any, error) {
	if s.files == nil {
		return nil, domainError(http.StatusServiceUnavailable, "FILES_UNAVAILABLE", "File storage is not configured", nil)
	}
	_, role, err := s.workspaceRole(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !rbac.Can(role, rbac.ActionRead) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	file, err := s.store.GetFileObject(ctx, workspaceID, fileID)
	if err != nil {
		return nil, err
	}
	url, err := s.files.PresignedURL(ctx, file.ObjectKey, file.Name, downloadURLExpiry)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"url":        url,
		"expires_in": int(downloadURLExpiry.Seconds()),
	}, nil
}

// DeleteFile removes a workspace file. The uploader or the workspace owner
// may delete.
func (s *Service) DeleteFile(ctx context.Context, session Session, workspaceID, fileID string) error {
	_, role, err := s.workspaceRole(ctx, workspaceID, session.UserID)
	if err != nil {
		return err
	}

	file, err := s.store.GetFileObject(ctx, workspaceID, fileID)
	if err != nil {
		return err
	}
	if file.UploadedBy != session.UserID && !rbac.Can(role, rbac.ActionManage) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the uploader or the owner can delete a file", nil)
	}

	if err := s.store.DeleteFileObject(ctx, workspaceID, fileID); err != nil {
		return err
	}
	if s.files != nil {
		if err := s.files.Remove(ctx, file.ObjectKey); err != nil {
			log.Printf("remove object %s: %v", file.ObjectKey, err)
		}
	}
	if s.search != nil {
		s.search.DeleteFile(fileID)
	}
	return nil
}

func filePayload(file store.FileObject) map[string]any {
	return map[string]any{
		"id":           file.ID,
		"workspace_id": file.WorkspaceID,
		"name":         file.Name,
		"content_type": file.ContentType,
		"size_bytes":   file.SizeBytes,
		"uploaded_by":  file.UploadedBy,
		"created_at":   file.CreatedAt,
	}
}
