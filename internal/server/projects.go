package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"minijira/internal/domain"
	"minijira/internal/engine"
)

type projectPath struct {
	ProjectID string `path:"project_id"`
}

func registerProjects(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects visible to the caller",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Query           string `query:"q"`
		Page            int    `query:"page"`
		PageSize        int    `query:"page_size"`
		IncludeArchived bool   `query:"include_archived"`
	}) (*struct {
		Body domain.Page[domain.Project] `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := h.e.ListProjects(ctx, userID, engine.ProjectListOptions{
			Query:           input.Query,
			Page:            input.Page,
			PageSize:        input.PageSize,
			IncludeArchived: input.IncludeArchived,
		})
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body domain.Page[domain.Project] `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := h.e.CreateProject(ctx, userID, engine.ProjectCreateOptions{
			Key:          input.Body.Key,
			Name:         input.Body.Name,
			DepartmentID: input.Body.DepartmentID,
		})
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := h.e.GetProject(ctx, userID, input.ProjectID)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}",
		Summary:     "Rename, archive or unarchive a project",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := h.e.UpdateProject(ctx, userID, input.ProjectID, engine.ProjectUpdateOptions{
			Name:     input.Body.Name,
			Archived: input.Body.Archived,
		})
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete a project with all its members, tasks and comments",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.DeleteProject(ctx, userID, input.ProjectID); err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-project-role",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/my-role",
		Summary:     "Caller's membership role in the project",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body MyRoleResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		role, _, err := h.e.MyRole(ctx, userID, input.ProjectID)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body MyRoleResponse `json:"body"`
		}{Body: MyRoleResponse{ProjectID: input.ProjectID, Role: string(role)}}, nil
	})
}

func registerMembers(api huma.API, h handler) {
	type memberPath struct {
		ProjectID string `path:"project_id"`
		UserID    string `path:"user_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/members",
		Summary:     "List project members",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body []domain.ProjectMember `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := h.e.ListMembers(ctx, userID, input.ProjectID)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body []domain.ProjectMember `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-member",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/members",
		Summary:       "Add a member by email",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"project_id"`
		Body      AddMemberRequest `json:"body"`
	}) (*struct {
		Body domain.ProjectMember `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := h.e.AddMember(ctx, userID, input.ProjectID, input.Body.Email, input.Body.Role)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body domain.ProjectMember `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "update-member-role",
		Method:        http.MethodPut,
		Path:          "/projects/{project_id}/members/{user_id}",
		Summary:       "Change a member's project role",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		UserID    string                  `path:"user_id"`
		Body      UpdateMemberRoleRequest `json:"body"`
	}) (*struct{}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.UpdateMemberRole(ctx, userID, input.ProjectID, input.UserID, input.Body.Role); err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-member",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/members/{user_id}",
		Summary:       "Remove a member",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *memberPath) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.RemoveMember(ctx, userID, input.ProjectID, input.UserID); err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct{}{}, nil
	})
}
