package app

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"devhub/api/internal/config"
	"devhub/api/internal/store"
)

// fakeStore is an in-memory dataStore. Membership methods carry the same
// semantics as the SQL they stand in for, so lifecycle tests exercise the
// real state machine. Individual methods can be overridden with func fields.
type fakeStore struct {
	mu          sync.Mutex
	users       map[string]store.User      // keyed by user ID
	workspaces  map[string]store.Workspace // keyed by workspace ID
	memberships map[string]store.Membership
	messages    []store.ChatMessage
	files       map[string]store.FileObject

	upsertInvitationFn func(context.Context, store.Membership) error
	activateFn         func(ctx context.Context, workspaceID, email, userID string) (bool, error)
	pingFn             func(context.Context) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[string]store.User),
		workspaces:  make(map[string]store.Workspace),
		memberships: make(map[string]store.Membership),
		files:       make(map[string]store.FileObject),
	}
}

func membershipKey(workspaceID, email string) string {
	return workspaceID + "|" + email
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) InsertWorkspace(_ context.Context, ws store.Workspace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = time.Now()
	}
	f.workspaces[ws.ID] = ws
	return nil
}

func (f *fakeStore) GetWorkspace(_ context.Context, workspaceID string) (store.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.workspaces[workspaceID]
	if !ok {
		return store.Workspace{}, sql.ErrNoRows
	}
	return ws, nil
}

func (f *fakeStore) DeleteWorkspace(_ context.Context, workspaceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.workspaces, workspaceID)
	for key, m := range f.memberships {
		if m.WorkspaceID == workspaceID {
			delete(f.memberships, key)
		}
	}
	return nil
}

func (f *fakeStore) UpsertInvitation(ctx context.Context, m store.Membership) error {
	if f.upsertInvitationFn != nil {
		return f.upsertInvitationFn(ctx, m)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := membershipKey(m.WorkspaceID, m.Email)
	if existing, ok := f.memberships[key]; ok {
		// The conflict update only refreshes a pending row; an active
		// membership is never downgraded.
		if existing.Status == store.MembershipPending {
			existing.Message = m.Message
			existing.InvitedBy = m.InvitedBy
			existing.InvitedAt = time.Now()
			f.memberships[key] = existing
		}
		return nil
	}
	m.Status = store.MembershipPending
	m.InvitedAt = time.Now()
	f.memberships[key] = m
	return nil
}

func (f *fakeStore) InsertOwnerMembership(_ context.Context, id, workspaceID, email, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	uid := userID
	f.memberships[membershipKey(workspaceID, email)] = store.Membership{
		ID:          id,
		WorkspaceID: workspaceID,
		Email:       email,
		UserID:      &uid,
		Role:        store.RoleOwner,
		Status:      store.MembershipActive,
		InvitedAt:   now,
		AcceptedAt:  &now,
	}
	return nil
}

func (f *fakeStore) GetMembership(_ context.Context, workspaceID, email string) (store.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memberships[membershipKey(workspaceID, email)]
	if !ok {
		return store.Membership{}, sql.ErrNoRows
	}
	return m, nil
}

func (f *fakeStore) ActivateMembership(ctx context.Context, workspaceID, email, userID string) (bool, error) {
	if f.activateFn != nil {
		return f.activateFn(ctx, workspaceID, email, userID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := membershipKey(workspaceID, email)
	m, ok := f.memberships[key]
	if !ok || m.Status != store.MembershipPending {
		return false, nil
	}
	now := time.Now()
	uid := userID
	m.Status = store.MembershipActive
	m.UserID = &uid
	m.AcceptedAt = &now
	f.memberships[key] = m
	return true, nil
}

func (f *fakeStore) DeleteMembership(_ context.Context, workspaceID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.memberships, membershipKey(workspaceID, email))
	return nil
}

func (f *fakeStore) DeletePendingMembership(_ context.Context, workspaceID, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := membershipKey(workspaceID, email)
	m, ok := f.memberships[key]
	if !ok || m.Status != store.MembershipPending {
		return false, nil
	}
	delete(f.memberships, key)
	return true, nil
}

func (f *fakeStore) ListAccessibleWorkspaces(_ context.Context, userID string) ([]store.WorkspaceAccess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]store.WorkspaceAccess)
	for _, ws := range f.workspaces {
		if ws.OwnerID == userID {
			seen[ws.ID] = store.WorkspaceAccess{
				Workspace:        ws,
				MembershipStatus: store.MembershipActive,
				MembershipRole:   store.RoleOwner,
			}
		}
	}
	for _, m := range f.memberships {
		if m.Status != store.MembershipActive || m.UserID == nil || *m.UserID != userID {
			continue
		}
		if _, ok := seen[m.WorkspaceID]; ok {
			continue
		}
		ws, ok := f.workspaces[m.WorkspaceID]
		if !ok {
			continue
		}
		seen[ws.ID] = store.WorkspaceAccess{
			Workspace:        ws,
			MembershipStatus: m.Status,
			MembershipRole:   m.Role,
		}
	}
	items := make([]store.WorkspaceAccess, 0, len(seen))
	for _, item := range seen {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeStore) ListPendingInvitations(_ context.Context, email string) ([]store.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []store.Invitation
	for _, m := range f.memberships {
		if m.Email != email || m.Status != store.MembershipPending {
			continue
		}
		ws := f.workspaces[m.WorkspaceID]
		inviter := f.users[m.InvitedBy]
		items = append(items, store.Invitation{
			WorkspaceID:          m.WorkspaceID,
			WorkspaceName:        ws.Name,
			WorkspaceDescription: ws.Description,
			Email:                m.Email,
			Message:              m.Message,
			InviterEmail:         inviter.Email,
			InviterName:          inviter.DisplayName,
			InvitedAt:            m.InvitedAt,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].WorkspaceID < items[j].WorkspaceID })
	return items, nil
}

func (f *fakeStore) ListMembers(_ context.Context, workspaceID string) ([]store.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []store.Membership
	for _, m := range f.memberships {
		if m.WorkspaceID == workspaceID {
			items = append(items, m)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Email < items[j].Email })
	return items, nil
}

func (f *fakeStore) GetActiveMembershipByUser(_ context.Context, workspaceID, userID string) (store.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.memberships {
		if m.WorkspaceID == workspaceID && m.Status == store.MembershipActive && m.UserID != nil && *m.UserID == userID {
			return m, nil
		}
	}
	return store.Membership{}, sql.ErrNoRows
}

func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error { return nil }
func (f *fakeStore) IsAccessTokenRevoked(context.Context, string) (bool, error) { return false, nil }

func (f *fakeStore) InsertChatMessage(_ context.Context, msg store.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeStore) ListChannelMessages(_ context.Context, workspaceID string, limit int) ([]store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []store.ChatMessage
	for _, msg := range f.messages {
		if msg.WorkspaceID == workspaceID && msg.RecipientID == "" {
			items = append(items, msg)
		}
	}
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items, nil
}

func (f *fakeStore) ListDirectMessages(_ context.Context, workspaceID, userA, userB string, limit int) ([]store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []store.ChatMessage
	for _, msg := range f.messages {
		if msg.WorkspaceID != workspaceID || msg.RecipientID == "" {
			continue
		}
		pair := (msg.SenderID == userA && msg.RecipientID == userB) ||
			(msg.SenderID == userB && msg.RecipientID == userA)
		if pair {
			items = append(items, msg)
		}
	}
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items, nil
}

func (f *fakeStore) InsertFileObject(_ context.Context, file store.FileObject) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now()
	}
	f.files[file.ID] = file
	return nil
}

func (f *fakeStore) GetFileObject(_ context.Context, workspaceID, fileID string) (store.FileObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[fileID]
	if !ok || file.WorkspaceID != workspaceID {
		return store.FileObject{}, sql.ErrNoRows
	}
	return file, nil
}

func (f *fakeStore) ListFileObjects(_ context.Context, workspaceID string) ([]store.FileObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []store.FileObject
	for _, file := range f.files {
		if file.WorkspaceID == workspaceID {
			items = append(items, file)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeStore) DeleteFileObject(_ context.Context, workspaceID, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[fileID]; ok && file.WorkspaceID == workspaceID {
		delete(f.files, fileID)
	}
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			TokenSecret: "test-secret",
			AccessTTL:   time.Hour,
			RefreshTTL:  24 * time.Hour,
		},
		store: fs,
	}
}

// seedWorkspace creates a workspace with its owner user and active owner
// membership, mirroring what CreateWorkspace writes.
func seedWorkspace(fs *fakeStore, wsID, name, ownerID, ownerEmail string) {
	fs.users[ownerID] = store.User{ID: ownerID, Email: ownerEmail, DisplayName: "Owner", IsEmailVerified: true}
	fs.workspaces[wsID] = store.Workspace{ID: wsID, Name: name, OwnerID: ownerID, CreatedAt: time.Now()}
	_ = fs.InsertOwnerMembership(context.Background(), "mem-"+wsID, wsID, ownerEmail, ownerID)
}
