package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"minijira/internal/domain"
	"minijira/internal/engine"
)

func (h handler) issueToken(ctx context.Context, u domain.User) (*struct {
	Body AuthResponse `json:"body"`
}, error) {
	token, expires, err := signToken(h.auth, u, time.Now())
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return &struct {
		Body AuthResponse `json:"body"`
	}{Body: AuthResponse{AccessToken: token, ExpiresAt: expires.UTC(), User: meResponse(u)}}, nil
}

func registerAuth(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Register an account",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*struct {
		Body AuthResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		u, err := h.e.Register(ctx, engine.RegisterOptions{
			Email:        input.Body.Email,
			Password:     input.Body.Password,
			Name:         input.Body.Name,
			DepartmentID: input.Body.DepartmentID,
		})
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return h.issueToken(ctx, u)
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for an access token",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusTooManyRequests,
		},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body AuthResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		u, err := h.e.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			if se := handleError(err); se.GetStatus() == http.StatusUnauthorized {
				h.log.Info("login rejected", zap.String("email", input.Body.Email))
				return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
			}
			return nil, h.fail(ctx, err)
		}
		return h.issueToken(ctx, u)
	})
}

func registerMe(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := h.e.Me(ctx, userID)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: meResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/me/api-keys",
		Summary:     "List my API keys",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := h.e.ListAPIKeys(ctx, userID)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: nonNilSlice(keys)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/me/api-keys",
		Summary:       "Create an API key; the key is shown only once",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body" required:"false"`
	}) (*struct {
		Body engine.CreatedAPIKey `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, err := h.e.CreateAPIKey(ctx, userID, input.Body.Name)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body engine.CreatedAPIKey `json:"body"`
		}{Body: key}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/me/api-keys/{key_id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.DeleteAPIKey(ctx, userID, input.KeyID); err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerDepartments(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-departments",
		Method:      http.MethodGet,
		Path:        "/departments",
		Summary:     "List departments",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Department `json:"body"`
	}, error) {
		items, err := h.e.ListDepartments(ctx)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body []domain.Department `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}
