package app

import (
	"context"
	"net/http"
	"strings"

	"devhub/api/internal/rbac"
	"devhub/api/internal/search"
)

// Search runs a full-text search over the caller's accessible workspaces.
func (s *Service) Search(ctx context.Context, session Session, text, filterType, workspaceID string, limit, offset int) (map[string]any, error) {
	text = strings.TrimSpace(text)

	var rtyp search.ResultType
	switch filterType {
	case "":
	case string(search.ResultWorkspace), string(search.ResultMessage), string(search.ResultFile):
		rtyp = search.ResultType(filterType)
	default:
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be workspace, message, or file", nil)
	}

	query := search.Query{
		Text:       text,
		FilterType: rtyp,
		Limit:      limit,
		Offset:     offset,
	}

	if workspaceID != "" {
		_, role, err := s.workspaceRole(ctx, workspaceID, session.UserID)
		if err != nil {
			return nil, err
		}
		if !rbac.Can(role, rbac.ActionRead) {
			return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		}
		query.FilterWorkspaceID = workspaceID
	} else {
		accessible, err := s.store.ListAccessibleWorkspaces(ctx, session.UserID)
		if err != nil {
			return nil, err
		}
		if len(accessible) == 0 {
			return map[string]any{"results": []search.Result{}, "total": 0, "query": text}, nil
		}
		ids := make([]string, 0, len(accessible))
		for _, ws := range accessible {
			ids = append(ids, ws.ID)
		}
		query.WorkspaceIDs = ids
	}

	if s.search == nil {
		return map[string]any{"results": []search.Result{}, "total": 0, "query": text}, nil
	}

	resp := s.search.Search(query)
	return map[string]any{
		"results": resp.Results,
		"total":   resp.Total,
		"query":   resp.Query,
	}, nil
}

// ReviewCode asks the assistant for a code review.
func (s *Service) ReviewCode(ctx context.Context, language, code string) (map[string]any, error) {
	if s.assistant == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ASSISTANT_UNAVAILABLE", "Assistant is not configured", nil)
	}
	if strings.TrimSpace(code) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "code is required", nil)
	}
	review, err := s.assistant.ReviewCode(ctx, language, code)
	if err != nil {
		return nil, domainError(http.StatusBadGateway, "ASSISTANT_FAILED", "Assistant request failed", nil)
	}
	return map[string]any{"review": review}, nil
}

// Flowchart asks the assistant for a Mermaid flowchart.
func (s *Service) Flowchart(ctx context.Context, description string) (map[string]any, error) {
	if s.assistant == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ASSISTANT_UNAVAILABLE", "Assistant is not configured", nil)
	}
	if strings.TrimSpace(description) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "description is required", nil)
	}
	chart, err := s.assistant.Flowchart(ctx, description)
	if err != nil {
		return nil, domainError(http.StatusBadGateway, "ASSISTANT_FAILED", "Assistant request failed", nil)
	}
	return map[string]any{"mermaid": chart}, nil
}

// Complete answers a free-form assistant question.
func (s *Service) Complete(ctx context.Context, question string) (map[string]any, error) {
	if s.assistant == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ASSISTANT_UNAVAILABLE", "Assistant is not configured", nil)
	}
	if strings.TrimSpace(question) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "question is required", nil)
	}
	answer, err := s.assistant.Complete(ctx, question)
	if err != nil {
		return nil, domainError(http.StatusBadGateway, "ASSISTANT_FAILED", "Assistant request failed", nil)
	}
	return map[string]any{"answer": answer}, nil
}
