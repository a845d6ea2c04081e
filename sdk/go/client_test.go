package minijirasdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginStoresToken(t *testing.T) {
	var authHeaders []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/auth/login":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "user@demo.com", body["email"])
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "tok",
				"user":         map[string]any{"id": "u1", "email": "user@demo.com", "roles": []string{"USER"}},
			})
		case "/api/me":
			json.NewEncoder(w).Encode(map[string]any{"id": "u1", "email": "user@demo.com"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/api/")
	u, err := c.Login(context.Background(), "user@demo.com", "Demo123!")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "tok", c.BearerToken)

	_, err = c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"", "Bearer tok"}, authHeaders)
}

func TestAPIErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":"forbidden","message":"not allowed to view project"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "mj_key"
	_, err := c.CreateTask(context.Background(), "p1", "Write docs", "")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusForbidden))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "forbidden", apiErr.Code)
	assert.Equal(t, "not allowed to view project", apiErr.Message)
}

func TestRequestPathsAndQueries(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.RequestURI())
		assert.Equal(t, "mj_key", r.Header.Get("X-Api-Key"))
		switch r.Method {
		case http.MethodPost:
			if r.URL.Path == "/tasks/t1/assignees/u2" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		case http.MethodGet:
			if r.URL.Path == "/projects" {
				w.Write([]byte(`{"items":[{"id":"p1","key":"ALPHA"}],"page":2,"page_size":5,"total":6}`))
				return
			}
			w.Write([]byte(`[]`))
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "mj_key"
	ctx := context.Background()

	page, err := c.Projects(ctx, "alp", 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	require.Len(t, page.Items, 1)

	_, err = c.AddMember(ctx, "p1", "viewer@demo.com", "VIEWER")
	require.NoError(t, err)
	_, err = c.SetTaskStatus(ctx, "t1", "DONE")
	require.NoError(t, err)
	require.NoError(t, c.AssignTask(ctx, "t1", "u2"))
	_, err = c.ProjectEvents(ctx, "p1", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"GET /projects?page=2&page_size=5&q=alp",
		"POST /projects/p1/members",
		"PUT /tasks/t1",
		"POST /tasks/t1/assignees/u2",
		"GET /projects/p1/events?limit=10",
	}, seen)
}
