package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/taskpin/taskpin/internal/asana"
	"github.com/taskpin/taskpin/internal/auth"
	"github.com/taskpin/taskpin/internal/cache"
	"github.com/taskpin/taskpin/internal/errdefs"
	"github.com/taskpin/taskpin/internal/suggest"
)

// Message types accepted by the router. page/content is answered by the
// capturing surface itself; a daemon receiving it replies with
// INVALID_REQUEST instead of hanging.
const (
	TypeAuthStart      = "auth/start"
	TypeAuthStatus     = "auth/status"
	TypeAuthLogout     = "auth/logout"
	TypeWorkspacesList = "workspaces/list"
	TypeProjectsList   = "projects/list"
	TypeSectionsList   = "sections/list"
	TypeTagsList       = "tags/list"
	TypeUsersList      = "users/list"
	TypeUserMe         = "user/me"
	TypeTaskCreate     = "task/create"
	TypeSuggestTitle   = "suggest/title"
	TypeCacheClear     = "cache/clear"
	TypePageContent    = "page/content"
)

// Cache lifetimes per resource. Workspaces and the current user change
// rarely; project structure churns more.
const (
	workspacesTTL  = time.Hour
	projectsTTL    = 10 * time.Minute
	sectionsTTL    = 10 * time.Minute
	tagsTTL        = 30 * time.Minute
	usersTTL       = 30 * time.Minute
	currentUserTTL = time.Hour
)

// AuthService is the slice of the OAuth session manager the router needs.
// *auth.Manager satisfies it.
type AuthService interface {
	StartAuthFlow(ctx context.Context) (*auth.Attempt, error)
	IsAuthenticated(ctx context.Context) (bool, error)
	Logout(ctx context.Context) error
}

// APIService is the slice of the task API client the router needs.
// *asana.Client satisfies it.
type APIService interface {
	Workspaces(ctx context.Context) ([]asana.Workspace, error)
	Projects(ctx context.Context, workspaceGID string) ([]asana.Project, error)
	Sections(ctx context.Context, projectGID string) ([]asana.Section, error)
	Tags(ctx context.Context, workspaceGID string) ([]asana.Tag, error)
	Users(ctx context.Context, workspaceGID string) ([]asana.User, error)
	CurrentUser(ctx context.Context) (*asana.User, error)
	CreateTask(ctx context.Context, input asana.TaskInput) (*asana.Task, error)
}

// Suggester produces task titles. *suggest.Client satisfies it.
type Suggester interface {
	SuggestTitle(ctx context.Context, page suggest.PageContent) (string, error)
}

// Services bundles everything the standard handler set dispatches into.
type Services struct {
	Auth    AuthService
	API     APIService
	Cache   *cache.Cache
	Suggest Suggester
}

// RegisterHandlers wires the standard message set into r.
func RegisterHandlers(r *Router, svc Services) {
	r.Handle(TypeAuthStart, svc.handleAuthStart)
	r.Handle(TypeAuthStatus, svc.handleAuthStatus)
	r.Handle(TypeAuthLogout, svc.handleAuthLogout)
	r.Handle(TypeWorkspacesList, svc.handleWorkspacesList)
	r.Handle(TypeProjectsList, svc.handleProjectsList)
	r.Handle(TypeSectionsList, svc.handleSectionsList)
	r.Handle(TypeTagsList, svc.handleTagsList)
	r.Handle(TypeUsersList, svc.handleUsersList)
	r.Handle(TypeUserMe, svc.handleUserMe)
	r.Handle(TypeTaskCreate, svc.handleTaskCreate)
	r.Handle(TypeSuggestTitle, svc.handleSuggestTitle)
	r.Handle(TypeCacheClear, svc.handleCacheClear)
	r.Handle(TypePageContent, handlePageContent)
}

// authStartData is returned by auth/start; the caller opens AuthURL in a
// browser and the loopback callback completes the flow.
type authStartData struct {
	AuthURL   string `json:"authUrl"`
	AttemptID string `json:"attemptId"`
}

func (s Services) handleAuthStart(ctx context.Context, _ json.RawMessage) (any, error) {
	attempt, err := s.Auth.StartAuthFlow(ctx)
	if err != nil {
		return nil, err
	}
	return authStartData{AuthURL: attempt.AuthURL, AttemptID: attempt.ID}, nil
}

type authStatusData struct {
	Authenticated bool `json:"authenticated"`
}

func (s Services) handleAuthStatus(ctx context.Context, _ json.RawMessage) (any, error) {
	ok, err := s.Auth.IsAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	return authStatusData{Authenticated: ok}, nil
}

// handleAuthLogout removes the tokens and drops the cache: cached data
// belongs to the session that just ended.
func (s Services) handleAuthLogout(ctx context.Context, _ json.RawMessage) (any, error) {
	if err := s.Auth.Logout(ctx); err != nil {
		return nil, err
	}
	if err := s.Cache.Clear(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

// listRequest covers the cached list messages.
type listRequest struct {
	WorkspaceGID string `json:"workspaceGid,omitempty"`
	ProjectGID   string `json:"projectGid,omitempty"`
	ForceRefresh bool   `json:"forceRefresh,omitempty"`
}

func decodeList(payload json.RawMessage) (listRequest, error) {
	var req listRequest
	if len(payload) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, errdefs.NewInvalidRequest("malformed payload")
	}
	return req, nil
}

func (s Services) handleWorkspacesList(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decodeList(payload)
	if err != nil {
		return nil, err
	}
	opts := cache.Options{TTL: workspacesTTL, ForceRefresh: req.ForceRefresh}
	return cache.GetOrFetch(ctx, s.Cache, "workspaces", opts, s.API.Workspaces)
}

func (s Services) handleProjectsList(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decodeList(payload)
	if err != nil {
		return nil, err
	}
	if req.WorkspaceGID == "" {
		return nil, errdefs.NewValidation("workspace is required")
	}
	opts := cache.Options{TTL: projectsTTL, ForceRefresh: req.ForceRefresh}
	return cache.GetOrFetch(ctx, s.Cache, "projects_"+req.WorkspaceGID, opts,
		func(ctx context.Context) ([]asana.Project, error) {
			return s.API.Projects(ctx, req.WorkspaceGID)
		})
}

func (s Services) handleSectionsList(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decodeList(payload)
	if err != nil {
		return nil, err
	}
	if req.ProjectGID == "" {
		return nil, errdefs.NewValidation("project is required")
	}
	opts := cache.Options{TTL: sectionsTTL, ForceRefresh: req.ForceRefresh}
	return cache.GetOrFetch(ctx, s.Cache, "sections_"+req.ProjectGID, opts,
		func(ctx context.Context) ([]asana.Section, error) {
			return s.API.Sections(ctx, req.ProjectGID)
		})
}

func (s Services) handleTagsList(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decodeList(payload)
	if err != nil {
		return nil, err
	}
	if req.WorkspaceGID == "" {
		return nil, errdefs.NewValidation("workspace is required")
	}
	opts := cache.Options{TTL: tagsTTL, ForceRefresh: req.ForceRefresh}
	return cache.GetOrFetch(ctx, s.Cache, "tags_"+req.WorkspaceGID, opts,
		func(ctx context.Context) ([]asana.Tag, error) {
			return s.API.Tags(ctx, req.WorkspaceGID)
		})
}

func (s Services) handleUsersList(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decodeList(payload)
	if err != nil {
		return nil, err
	}
	if req.WorkspaceGID == "" {
		return nil, errdefs.NewValidation("workspace is required")
	}
	opts := cache.Options{TTL: usersTTL, ForceRefresh: req.ForceRefresh}
	return cache.GetOrFetch(ctx, s.Cache, "users_"+req.WorkspaceGID, opts,
		func(ctx context.Context) ([]asana.User, error) {
			return s.API.Users(ctx, req.WorkspaceGID)
		})
}

func (s Services) handleUserMe(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decodeList(payload)
	if err != nil {
		return nil, err
	}
	opts := cache.Options{TTL: currentUserTTL, ForceRefresh: req.ForceRefresh}
	return cache.GetOrFetch(ctx, s.Cache, "current_user", opts, s.API.CurrentUser)
}

// taskCreateRequest mirrors the popup's form fields.
type taskCreateRequest struct {
	Name         string   `json:"name"`
	Notes        string   `json:"notes,omitempty"`
	WorkspaceGID string   `json:"workspaceGid"`
	ProjectGID   string   `json:"projectGid,omitempty"`
	SectionGID   string   `json:"sectionGid,omitempty"`
	AssigneeGID  string   `json:"assigneeGid,omitempty"`
	DueOn        string   `json:"dueOn,omitempty"`
	DueAt        string   `json:"dueAt,omitempty"`
	TagGIDs      []string `json:"tagGids,omitempty"`
}

func (s Services) handleTaskCreate(ctx context.Context, payload json.RawMessage) (any, error) {
	var req taskCreateRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errdefs.NewInvalidRequest("malformed payload")
	}
	return s.API.CreateTask(ctx, asana.TaskInput{
		Name:         req.Name,
		Notes:        req.Notes,
		WorkspaceGID: req.WorkspaceGID,
		ProjectGID:   req.ProjectGID,
		SectionGID:   req.SectionGID,
		AssigneeGID:  req.AssigneeGID,
		DueOn:        req.DueOn,
		DueAt:        req.DueAt,
		TagGIDs:      req.TagGIDs,
	})
}

type suggestTitleData struct {
	Title string `json:"title"`
}

func (s Services) handleSuggestTitle(ctx context.Context, payload json.RawMessage) (any, error) {
	var page suggest.PageContent
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, errdefs.NewInvalidRequest("malformed payload")
	}
	title, err := s.Suggest.SuggestTitle(ctx, page)
	if err != nil {
		return nil, err
	}
	return suggestTitleData{Title: title}, nil
}

func (s Services) handleCacheClear(ctx context.Context, _ json.RawMessage) (any, error) {
	if err := s.Cache.Clear(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

func handlePageContent(_ context.Context, _ json.RawMessage) (any, error) {
	return nil, errdefs.NewInvalidRequest("page/content is answered by the capturing surface, not the daemon")
}
