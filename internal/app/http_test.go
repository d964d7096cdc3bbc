package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"devhub/api/internal/auth"
	"devhub/api/internal/util"
)

func issueTestToken(t *testing.T, userID, userName, email string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{
		Sub:   userID,
		Name:  userName,
		Email: email,
		JTI:   util.NewID("jti"),
		Exp:   time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var response map[string]any
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
			t.Fatalf("parse response %q: %v", rr.Body.String(), err)
		}
	}
	return rr, response
}

func TestRoutes_RequireSession(t *testing.T) {
	svc := newTestService(newFakeStore())
	handler := NewHTTPServer(svc, "*").Handler()

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/workspaces"},
		{http.MethodPost, "/api/workspaces"},
		{http.MethodGet, "/api/invitations"},
		{http.MethodPost, "/api/invitations/accept"},
		{http.MethodGet, "/api/search"},
		{http.MethodDelete, "/api/workspaces/ws1/members/bob@example.com"},
	}
	for _, route := range paths {
		rr, response := doJSON(t, handler, route.method, route.path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", route.method, route.path, rr.Code)
		}
		if response["code"] != "UNAUTHORIZED" {
			t.Errorf("%s %s: expected UNAUTHORIZED, got %v", route.method, route.path, response["code"])
		}
	}
}

func TestRoutes_RejectsGarbageToken(t *testing.T) {
	svc := newTestService(newFakeStore())
	handler := NewHTTPServer(svc, "*").Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rr.Code)
	}
}

func TestInvitationFlowOverHTTP(t *testing.T) {
	fs := newFakeStore()
	seedWorkspace(fs, "ws1", "Atlas", "u-owner", "owner@example.com")
	svc := newTestService(fs)
	handler := NewHTTPServer(svc, "*").Handler()

	ownerToken := issueTestToken(t, "u-owner", "Owner", "owner@example.com")
	bobToken := issueTestToken(t, "u-bob", "Bob", "bob@example.com")

	rr, response := doJSON(t, handler, http.MethodPost, "/api/workspaces/ws1/invitations", ownerToken, map[string]any{
		"email":   "bob@example.com",
		"message": "come join",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("invite: expected 200, got %d: %v", rr.Code, response)
	}
	if response["msg"] != "Invitation sent to bob@example.com" {
		t.Fatalf("invite: unexpected msg %v", response["msg"])
	}

	rr, response = doJSON(t, handler, http.MethodGet, "/api/invitations", bobToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list invitations: expected 200, got %d", rr.Code)
	}
	invitations := response["invitations"].([]any)
	if len(invitations) != 1 {
		t.Fatalf("expected 1 invitation, got %d", len(invitations))
	}
	first := invitations[0].(map[string]any)
	if first["workspace_id"] != "ws1" || first["message"] != "come join" {
		t.Fatalf("unexpected invitation: %v", first)
	}

	rr, response = doJSON(t, handler, http.MethodPost, "/api/invitations/accept", bobToken, map[string]any{
		"workspace_id": "ws1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d: %v", rr.Code, response)
	}
	if response["msg"] != "Joined Atlas" {
		t.Fatalf("accept: unexpected msg %v", response["msg"])
	}

	rr, response = doJSON(t, handler, http.MethodGet, "/api/workspaces", bobToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list workspaces: expected 200, got %d", rr.Code)
	}
	workspaces := response["workspaces"].([]any)
	if len(workspaces) != 1 {
		t.Fatalf("expected bob to see 1 workspace, got %d", len(workspaces))
	}

	// Accepting again is an idempotent success.
	rr, response = doJSON(t, handler, http.MethodPost, "/api/invitations/accept", bobToken, map[string]any{
		"workspace_id": "ws1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("second accept: expected 200, got %d", rr.Code)
	}
	if response["msg"] != "Already a member of this workspace" {
		t.Fatalf("second accept: unexpected msg %v", response["msg"])
	}

	rr, response = doJSON(t, handler, http.MethodDelete, "/api/workspaces/ws1/members/bob@example.com", ownerToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("remove member: expected 200, got %d: %v", rr.Code, response)
	}

	rr, response = doJSON(t, handler, http.MethodGet, "/api/workspaces", bobToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list after removal: expected 200, got %d", rr.Code)
	}
	if n := len(response["workspaces"].([]any)); n != 0 {
		t.Fatalf("expected no workspaces after removal, got %d", n)
	}
}

func TestAcceptInvitation_MissingWorkspaceID(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	handler := NewHTTPServer(svc, "*").Handler()
	token := issueTestToken(t, "u-bob", "Bob", "bob@example.com")

	rr, response := doJSON(t, handler, http.MethodPost, "/api/invitations/accept", token, map[string]any{})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if response["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", response["code"])
	}
}

func TestAcceptInvitation_UnknownWorkspaceMapsTo404(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	handler := NewHTTPServer(svc, "*").Handler()
	token := issueTestToken(t, "u-bob", "Bob", "bob@example.com")

	rr, response := doJSON(t, handler, http.MethodPost, "/api/invitations/accept", token, map[string]any{
		"workspace_id": "ws-missing",
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if response["code"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", response["code"])
	}
}

func TestDeclineInvitationOverHTTP(t *testing.T) {
	fs := newFakeStore()
	seedWorkspace(fs, "ws1", "Atlas", "u-owner", "owner@example.com")
	svc := newTestService(fs)
	handler := NewHTTPServer(svc, "*").Handler()

	ownerToken := issueTestToken(t, "u-owner", "Owner", "owner@example.com")
	bobToken := issueTestToken(t, "u-bob", "Bob", "bob@example.com")

	rr, _ := doJSON(t, handler, http.MethodPost, "/api/workspaces/ws1/invitations", ownerToken, map[string]any{
		"email": "bob@example.com",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("invite: expected 200, got %d", rr.Code)
	}

	rr, response := doJSON(t, handler, http.MethodPost, "/api/invitations/decline", bobToken, map[string]any{
		"workspace_id": "ws1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("decline: expected 200, got %d: %v", rr.Code, response)
	}
	if response["ok"] != true {
		t.Fatalf("decline: expected ok=true, got %v", response)
	}

	// A second decline finds nothing pending.
	rr, response = doJSON(t, handler, http.MethodPost, "/api/invitations/decline", bobToken, map[string]any{
		"workspace_id": "ws1",
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second decline: expected 404, got %d", rr.Code)
	}
	if response["code"] != "NO_PENDING_INVITATION" {
		t.Fatalf("second decline: expected NO_PENDING_INVITATION, got %v", response["code"])
	}
}

func TestWorkspaceDetailOverHTTP(t *testing.T) {
	fs := newFakeStore()
	seedWorkspace(fs, "ws1", "Atlas", "u-owner", "owner@example.com")
	svc := newTestService(fs)
	handler := NewHTTPServer(svc, "*").Handler()

	ownerToken := issueTestToken(t, "u-owner", "Owner", "owner@example.com")
	strangerToken := issueTestToken(t, "u-stranger", "Stranger", "stranger@example.com")

	rr, response := doJSON(t, handler, http.MethodGet, "/api/workspaces/ws1", ownerToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("detail: expected 200, got %d", rr.Code)
	}
	ws := response["workspace"].(map[string]any)
	if ws["name"] != "Atlas" {
		t.Fatalf("unexpected workspace: %v", ws)
	}
	if n := len(response["members"].([]any)); n != 1 {
		t.Fatalf("expected 1 member, got %d", n)
	}

	rr, _ = doJSON(t, handler, http.MethodGet, "/api/workspaces/ws1", strangerToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("detail as stranger: expected 403, got %d", rr.Code)
	}
}

func TestUnknownRoute404(t *testing.T) {
	svc := newTestService(newFakeStore())
	handler := NewHTTPServer(svc, "*").Handler()
	token := issueTestToken(t, "u-owner", "Owner", "owner@example.com")

	rr, response := doJSON(t, handler, http.MethodGet, "/api/nope", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if response["code"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", response["code"])
	}
}
