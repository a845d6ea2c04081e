package engine

import (
	"context"
	"database/sql"
	"html"
	"strings"
	"unicode/utf8"

	"minijira/internal/domain"
	"minijira/internal/engine/auth"
	"minijira/internal/events"
)

const maxCommentLength = 4000

func (e Engine) ListComments(ctx context.Context, callerID, taskID string) ([]domain.Comment, error) {
	caller, t, p, err := e.loadTask(ctx, callerID, taskID)
	if err != nil {
		return nil, err
	}
	if err := e.Policy.RequireView(ctx, projectRef(p), caller, "view comments"); err != nil {
		return nil, err
	}
	comments, err := e.Repo.ListComments(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	for i := range comments {
		comments[i].BodyHTML = e.renderBody(comments[i].Body)
	}
	return comments, nil
}

// CreateComment stores the trimmed body exactly as typed. Bodies are plain
// text; BodyHTML carries the escaped rendering.
func (e Engine) CreateComment(ctx context.Context, callerID, taskID, body string) (domain.Comment, error) {
	caller, t, p, err := e.loadTask(ctx, callerID, taskID)
	if err != nil {
		return domain.Comment{}, err
	}
	if err := e.Policy.RequireView(ctx, projectRef(p), caller, "comment on task"); err != nil {
		return domain.Comment{}, err
	}
	clean := strings.TrimSpace(body)
	if clean == "" {
		return domain.Comment{}, auth.Invalidf("comment body is required")
	}
	if utf8.RuneCountInString(clean) > maxCommentLength {
		return domain.Comment{}, auth.Invalidf("comment body must be at most %d characters", maxCommentLength)
	}
	c := domain.Comment{
		ID:        newID(),
		TaskID:    t.ID,
		AuthorID:  caller.ID,
		Body:      clean,
		CreatedAt: e.timestamp(),
	}
	c.BodyHTML = e.renderBody(c.Body)
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.CommentCreated, ProjectID: p.ID, EntityKind: "comment", EntityID: c.ID, ActorID: caller.ID,
			Payload: events.EventPayload{"task_id": t.ID},
		})
	})
	if err != nil {
		return domain.Comment{}, err
	}
	if u, err := e.Repo.GetUser(ctx, caller.ID); err == nil {
		c.AuthorEmail = u.Email
	}
	return c, nil
}

// renderBody escapes a plain-text body for display in a page, keeping line
// breaks. The sanitizer runs last so only <br> can reach the client.
func (e Engine) renderBody(body string) string {
	out := strings.ReplaceAll(html.EscapeString(body), "\n", "<br>")
	if e.Sanitizer == nil {
		return out
	}
	return e.Sanitizer.Sanitize(out)
}
