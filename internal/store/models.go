package store

import "time"

// Membership lifecycle states. A row is created pending by an invitation
// and becomes active exactly once, when the invitee accepts.
const (
	MembershipPending = "pending"
	MembershipActive  = "active"
)

// Membership roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Workspace struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Membership binds an invitee email (and, after acceptance, a user) to a
// workspace. At most one row exists per (workspace_id, email) pair.
type Membership struct {
	ID          string
	WorkspaceID string
	Email       string
	UserID      *string
	Role        string
	Status      string
	InvitedBy   string
	Message     string
	InvitedAt   time.Time
	AcceptedAt  *time.Time
}

// WorkspaceAccess is a workspace joined with the caller's standing in it,
// as returned by ListAccessibleWorkspaces.
type WorkspaceAccess struct {
	Workspace
	MembershipStatus string
	MembershipRole   string
}

// Invitation is a pending membership joined with presentation fields.
type Invitation struct {
	WorkspaceID          string
	WorkspaceName        string
	WorkspaceDescription string
	Email                string
	Message              string
	InviterEmail         string
	InviterName          string
	InvitedAt            time.Time
}

type ChatMessage struct {
	ID          string
	WorkspaceID string
	// RecipientID is set for direct messages; empty for the workspace channel.
	RecipientID string
	SenderID    string
	SenderName  string
	Body        string
	CreatedAt   time.Time
}

type FileObject struct {
	ID          string
	WorkspaceID string
	Name        string
	ContentType string
	SizeBytes   int64
	ObjectKey   string
	UploadedBy  string
	CreatedAt   time.Time
}
