package integrations

import (
	"context"
	"time"
)

// External system identifiers used by the rate limiter, error classification,
// and metrics labels.
const (
	SystemIdentity = "identity"
	SystemDocs     = "docs"
	SystemChat     = "chat"
	SystemTracker  = "tracker"
)

// IdentityUser is the result of provisioning a user at the identity provider.
type IdentityUser struct {
	ID             string
	TempCredential string
}

// IdentityClient provisions accounts at the identity/auth provider.
type IdentityClient interface {
	CreateUser(ctx context.Context, email, name string) (IdentityUser, error)
}

// DocumentClient manages folders, documents, and spreadsheets in the
// document store.
type DocumentClient interface {
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	CreateDocument(ctx context.Context, title, content, folderID string) (string, error)
	CreateSpreadsheet(ctx context.Context, title, folderID string) (string, error)
	AppendRow(ctx context.Context, sheetID string, row []string) error
}

// ChatClient drives the chat platform's administrative API.
type ChatClient interface {
	CreateRole(ctx context.Context, name, color string) (string, error)
	CreateChannel(ctx context.Context, name, categoryID string) (string, error)
	AssignRole(ctx context.Context, identity, roleID string) error
	SendDirectMessage(ctx context.Context, identity, content string) error
	PostMessage(ctx context.Context, channelID, content string) error
}

// Task is a task-tracker work item surfaced by the aggregator.
type Task struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	ListID   string     `json:"list_id"`
	ListName string     `json:"list_name"`
	DueDate  *time.Time `json:"due_date,omitempty"`
	Priority int        `json:"priority"`
	URL      string     `json:"url,omitempty"`
}

// TrackerClient queries the task tracker on behalf of a member credential.
type TrackerClient interface {
	ValidateCredential(ctx context.Context, token string) (bool, error)
	// ListAssignedTasks returns tasks assigned to the member within one list.
	ListAssignedTasks(ctx context.Context, listID, trackerUserID, token string) ([]Task, error)
	// ListAllAssignedTasks is the unscoped fallback across every list the
	// credential can see.
	ListAllAssignedTasks(ctx context.Context, trackerUserID, token string) ([]Task, error)
}

// Clients bundles the four external system clients the saga engine and task
// aggregator consume. Injected at construction time, never global.
type Clients struct {
	Identity IdentityClient
	Docs     DocumentClient
	Chat     ChatClient
	Tracker  TrackerClient
}
