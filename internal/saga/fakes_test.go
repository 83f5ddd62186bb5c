package saga

import (
	"context"
	"sync"

	"github.com/crewdeckhq/crewdeck/internal/integrations"
)

// fakeIdentity implements integrations.IdentityClient with overridable
// behavior and call counting.
type fakeIdentity struct {
	mu         sync.Mutex
	calls      int
	createUser func(email, name string) (integrations.IdentityUser, error)
}

func (f *fakeIdentity) CreateUser(_ context.Context, email, name string) (integrations.IdentityUser, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.createUser != nil {
		return f.createUser(email, name)
	}
	return integrations.IdentityUser{ID: "auth-" + email, TempCredential: "hunter2!"}, nil
}

type fakeDocs struct {
	mu                sync.Mutex
	calls             int
	rows              [][]string
	createFolder      func(name, parentID string) (string, error)
	createDocument    func(title, content, folderID string) (string, error)
	createSpreadsheet func(title, folderID string) (string, error)
	appendRow         func(sheetID string, row []string) error
}

func (f *fakeDocs) record() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeDocs) CreateFolder(_ context.Context, name, parentID string) (string, error) {
	f.record()
	if f.createFolder != nil {
		return f.createFolder(name, parentID)
	}
	return "folder-" + name, nil
}

func (f *fakeDocs) CreateDocument(_ context.Context, title, content, folderID string) (string, error) {
	f.record()
	if f.createDocument != nil {
		return f.createDocument(title, content, folderID)
	}
	return "doc-" + title, nil
}

func (f *fakeDocs) CreateSpreadsheet(_ context.Context, title, folderID string) (string, error) {
	f.record()
	if f.createSpreadsheet != nil {
		return f.createSpreadsheet(title, folderID)
	}
	return "sheet-" + title, nil
}

func (f *fakeDocs) AppendRow(_ context.Context, sheetID string, row []string) error {
	f.record()
	if f.appendRow != nil {
		return f.appendRow(sheetID, row)
	}
	f.mu.Lock()
	f.rows = append(f.rows, row)
	f.mu.Unlock()
	return nil
}

type fakeChat struct {
	mu            sync.Mutex
	calls         int
	roleGrants    []string
	directMsgs    []string
	channelPosts  []string
	createRole    func(name, color string) (string, error)
	createChannel func(name, categoryID string) (string, error)
	assignRole    func(identity, roleID string) error
	sendDM        func(identity, content string) error
	postMessage   func(channelID, content string) error
}

func (f *fakeChat) record() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeChat) CreateRole(_ context.Context, name, color string) (string, error) {
	f.record()
	if f.createRole != nil {
		return f.createRole(name, color)
	}
	return "role-" + name, nil
}

func (f *fakeChat) CreateChannel(_ context.Context, name, categoryID string) (string, error) {
	f.record()
	if f.createChannel != nil {
		return f.createChannel(name, categoryID)
	}
	return "chan-" + name, nil
}

func (f *fakeChat) AssignRole(_ context.Context, identity, roleID string) error {
	f.record()
	if f.assignRole != nil {
		return f.assignRole(identity, roleID)
	}
	f.mu.Lock()
	f.roleGrants = append(f.roleGrants, identity+":"+roleID)
	f.mu.Unlock()
	return nil
}

func (f *fakeChat) SendDirectMessage(_ context.Context, identity, content string) error {
	f.record()
	if f.sendDM != nil {
		return f.sendDM(identity, content)
	}
	f.mu.Lock()
	f.directMsgs = append(f.directMsgs, identity+": "+content)
	f.mu.Unlock()
	return nil
}

func (f *fakeChat) PostMessage(_ context.Context, channelID, content string) error {
	f.record()
	if f.postMessage != nil {
		return f.postMessage(channelID, content)
	}
	f.mu.Lock()
	f.channelPosts = append(f.channelPosts, channelID+": "+content)
	f.mu.Unlock()
	return nil
}

type fakeTracker struct {
	validate func(token string) (bool, error)
	byList   map[string][]integrations.Task
	all      []integrations.Task
	listErr  map[string]error
}

func (f *fakeTracker) ValidateCredential(_ context.Context, token string) (bool, error) {
	if f.validate != nil {
		return f.validate(token)
	}
	return true, nil
}

func (f *fakeTracker) ListAssignedTasks(_ context.Context, listID, _, _ string) ([]integrations.Task, error) {
	if err, ok := f.listErr[listID]; ok {
		return nil, err
	}
	return f.byList[listID], nil
}

func (f *fakeTracker) ListAllAssignedTasks(_ context.Context, _, _ string) ([]integrations.Task, error) {
	return f.all, nil
}

func fakeClients(identity *fakeIdentity, docs *fakeDocs, chat *fakeChat, tracker *fakeTracker) integrations.Clients {
	if identity == nil {
		identity = &fakeIdentity{}
	}
	if docs == nil {
		docs = &fakeDocs{}
	}
	if chat == nil {
		chat = &fakeChat{}
	}
	if tracker == nil {
		tracker = &fakeTracker{}
	}
	return integrations.Clients{Identity: identity, Docs: docs, Chat: chat, Tracker: tracker}
}

func externalCalls(clients integrations.Clients) int {
	total := 0
	if f, ok := clients.Identity.(*fakeIdentity); ok {
		total += f.calls
	}
	if f, ok := clients.Docs.(*fakeDocs); ok {
		total += f.calls
	}
	if f, ok := clients.Chat.(*fakeChat); ok {
		total += f.calls
	}
	return total
}

func failure(system, operation string, status int) error {
	return integrations.FromStatus(system, operation, status, "")
}
