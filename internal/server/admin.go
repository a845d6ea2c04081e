package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"minijira/internal/domain"
	"minijira/internal/engine"
)

func registerAdmin(api huma.API, h handler) {
	type departmentPath struct {
		DepartmentID string `path:"department_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "admin-create-department",
		Method:        http.MethodPost,
		Path:          "/admin/departments",
		Summary:       "Create department",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateDepartmentRequest `json:"body"`
	}) (*struct {
		Body domain.Department `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := h.e.CreateDepartment(ctx, userID, input.Body.ID, input.Body.Name)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body domain.Department `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "admin-update-department",
		Method:        http.MethodPut,
		Path:          "/admin/departments/{department_id}",
		Summary:       "Rename department",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		DepartmentID string                  `path:"department_id"`
		Body         UpdateDepartmentRequest `json:"body"`
	}) (*struct{}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.RenameDepartment(ctx, userID, input.DepartmentID, input.Body.Name); err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "admin-delete-department",
		Method:        http.MethodDelete,
		Path:          "/admin/departments/{department_id}",
		Summary:       "Delete an unused department; unknown ids are ignored",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *departmentPath) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.DeleteDepartment(ctx, userID, input.DepartmentID); err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-list-users",
		Method:      http.MethodGet,
		Path:        "/admin/users",
		Summary:     "Search users",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Query    string `query:"q"`
		Page     int    `query:"page"`
		PageSize int    `query:"page_size"`
	}) (*struct {
		Body domain.Page[domain.User] `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := h.e.ListUsers(ctx, userID, engine.UserListOptions{
			Query:    input.Query,
			Page:     input.Page,
			PageSize: input.PageSize,
		})
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body domain.Page[domain.User] `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-set-user-roles",
		Method:      http.MethodPut,
		Path:        "/admin/users/{user_id}/roles",
		Summary:     "Replace a user's global roles",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		UserID string                 `path:"user_id"`
		Body   UpdateUserRolesRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := h.e.SetUserRoles(ctx, userID, input.UserID, input.Body.Roles)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-set-user-department",
		Method:      http.MethodPut,
		Path:        "/admin/users/{user_id}/department",
		Summary:     "Move a user to another department",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		UserID string                      `path:"user_id"`
		Body   UpdateUserDepartmentRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := h.e.SetUserDepartment(ctx, userID, input.UserID, input.Body.DepartmentID)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "admin-reset-password",
		Method:        http.MethodPost,
		Path:          "/admin/users/{user_id}/reset-password",
		Summary:       "Set a new password for a user",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		UserID string               `path:"user_id"`
		Body   ResetPasswordRequest `json:"body"`
	}) (*struct{}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.ResetPassword(ctx, userID, input.UserID, input.Body.NewPassword); err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, h handler) {
	type eventQuery struct {
		Type  string `query:"type"`
		Limit int    `query:"limit"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "admin-list-events",
		Method:      http.MethodGet,
		Path:        "/admin/events",
		Summary:     "Audit log, newest first",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *eventQuery) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := h.e.ListEvents(ctx, userID, engine.EventListOptions{Type: input.Type, Limit: input.Limit})
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "Project activity, newest first",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Type      string `query:"type"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := h.e.ListEvents(ctx, userID, engine.EventListOptions{
			ProjectID: input.ProjectID,
			Type:      input.Type,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}
