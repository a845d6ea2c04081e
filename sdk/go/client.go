package minijirasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal MiniJira HTTP API client. BaseURL includes the API
// base path, e.g. http://localhost:8080/api.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// User is the current-user view returned by login and /me.
type User struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	Name           string   `json:"name"`
	DepartmentID   *string  `json:"department_id"`
	DepartmentName *string  `json:"department_name"`
	Roles          []string `json:"roles"`
}

type Project struct {
	ID           string `json:"id"`
	Key          string `json:"key"`
	Name         string `json:"name"`
	DepartmentID string `json:"department_id"`
	Archived     bool   `json:"archived"`
	MyRole       string `json:"my_role,omitempty"`
}

type Member struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

type Task struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Title     string  `json:"title"`
	Status    string  `json:"status"`
	Priority  string  `json:"priority"`
	DueDate   *string `json:"due_date,omitempty"`
}

type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	BodyHTML  string `json:"body_html,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Event represents an audit log entry. Payload is the raw JSON string.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// Page is one slice of a paginated listing.
type Page[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		User        User   `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return User{}, err
	}
	c.BearerToken = resp.AccessToken
	return resp.User, nil
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// Projects lists projects visible to the caller.
func (c *Client) Projects(ctx context.Context, query string, page, pageSize int) (Page[Project], error) {
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	if pageSize > 0 {
		q.Set("page_size", fmt.Sprint(pageSize))
	}
	var resp Page[Project]
	err := c.do(ctx, http.MethodGet, withQuery("projects", q), nil, &resp)
	return resp, err
}

func (c *Client) CreateProject(ctx context.Context, key, name string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", map[string]string{"key": key, "name": name}, &resp)
	return resp, err
}

// AddMember adds a user by email. An empty role means MEMBER.
func (c *Client) AddMember(ctx context.Context, projectID, email, role string) (Member, error) {
	body := map[string]string{"email": email}
	if role != "" {
		body["role"] = role
	}
	var resp Member
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "members"), body, &resp)
	return resp, err
}

func (c *Client) CreateTask(ctx context.Context, projectID, title, priority string) (Task, error) {
	body := map[string]string{"title": title}
	if priority != "" {
		body["priority"] = priority
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "tasks"), body, &resp)
	return resp, err
}

func (c *Client) SetTaskStatus(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPut, c.taskPath(taskID, ""), map[string]string{"status": status}, &resp)
	return resp, err
}

func (c *Client) AssignTask(ctx context.Context, taskID, userID string) error {
	return c.do(ctx, http.MethodPost, c.taskPath(taskID, "assignees/"+url.PathEscape(userID)), nil, nil)
}

func (c *Client) AddComment(ctx context.Context, taskID, body string) (Comment, error) {
	var resp Comment
	err := c.do(ctx, http.MethodPost, c.taskPath(taskID, "comments"), map[string]string{"body": body}, &resp)
	return resp, err
}

// ProjectEvents returns the newest events of a project.
func (c *Client) ProjectEvents(ctx context.Context, projectID string, limit int) ([]Event, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, withQuery(c.projectPath(projectID, "events"), q), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(projectID, p string) string {
	return fmt.Sprintf("projects/%s/%s", url.PathEscape(projectID), strings.TrimLeft(p, "/"))
}

func (c *Client) taskPath(taskID, p string) string {
	if p == "" {
		return "tasks/" + url.PathEscape(taskID)
	}
	return fmt.Sprintf("tasks/%s/%s", url.PathEscape(taskID), strings.TrimLeft(p, "/"))
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
