// Package sessions keeps per-browser state between requests: the credentials
// a user entered and the status and result of their latest run.
//
// State changes only through the mutation points in this file: Create,
// SetCredentials, StartRun, FinishRun and FailRun.
package sessions

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRunInProgress   = errors.New("a presentation is already being generated for this session")
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Credentials are the keys a user supplies in the UI. Empty fields fall back
// to the server configuration.
type Credentials struct {
	LLMAPIKey         string `json:"llm_api_key,omitempty"`
	SearchAPIKey      string `json:"search_api_key,omitempty"`
	LangfusePublicKey string `json:"langfuse_public_key,omitempty"`
	LangfuseSecretKey string `json:"langfuse_secret_key,omitempty"`
}

// Merge returns c with every non-empty field of update applied.
func (c Credentials) Merge(update Credentials) Credentials {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&c.LLMAPIKey, update.LLMAPIKey)
	set(&c.SearchAPIKey, update.SearchAPIKey)
	set(&c.LangfusePublicKey, update.LangfusePublicKey)
	set(&c.LangfuseSecretKey, update.LangfuseSecretKey)
	return c
}

// Result is the outcome of a successful run.
type Result struct {
	Topic    string `json:"topic"`
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
	Path     string `json:"path"`
}

type Session struct {
	ID          string      `json:"id"`
	Credentials Credentials `json:"credentials"`
	Status      Status      `json:"status"`
	Topic       string      `json:"topic,omitempty"`
	Result      *Result     `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Store persists sessions. Update applies fn atomically to one session and
// stores the result; an error from fn aborts the update and is returned as is.
type Store interface {
	Create(ctx context.Context, creds Credentials) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// SetCredentials merges creds into the session.
func SetCredentials(ctx context.Context, s Store, id string, creds Credentials) (*Session, error) {
	return s.Update(ctx, id, func(sess *Session) error {
		sess.Credentials = sess.Credentials.Merge(creds)
		return nil
	})
}

// StartRun marks the session running for topic. A session already running
// is left alone and ErrRunInProgress is returned.
func StartRun(ctx context.Context, s Store, id, topic string) (*Session, error) {
	return s.Update(ctx, id, func(sess *Session) error {
		if sess.Status == StatusRunning {
			return ErrRunInProgress
		}
		sess.Status = StatusRunning
		sess.Topic = topic
		sess.Error = ""
		return nil
	})
}

// FinishRun stores the result of a successful run.
func FinishRun(ctx context.Context, s Store, id string, res Result) (*Session, error) {
	return s.Update(ctx, id, func(sess *Session) error {
		sess.Status = StatusDone
		sess.Result = &res
		sess.Error = ""
		return nil
	})
}

// FailRun records a failed run. The previous result, if any, is kept.
func FailRun(ctx context.Context, s Store, id, message string) (*Session, error) {
	return s.Update(ctx, id, func(sess *Session) error {
		sess.Status = StatusFailed
		sess.Error = message
		return nil
	})
}

// View is what clients see of a session: keys are masked.
type View struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	Topic        string    `json:"topic,omitempty"`
	Result       *Result   `json:"result,omitempty"`
	Error        string    `json:"error,omitempty"`
	LLMAPIKey    string    `json:"llm_api_key"`
	SearchAPIKey string    `json:"search_api_key"`
	Tracing      bool      `json:"tracing"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Session) View() View {
	return View{
		ID:           s.ID,
		Status:       s.Status,
		Topic:        s.Topic,
		Result:       s.Result,
		Error:        s.Error,
		LLMAPIKey:    Mask(s.Credentials.LLMAPIKey),
		SearchAPIKey: Mask(s.Credentials.SearchAPIKey),
		Tracing:      s.Credentials.LangfusePublicKey != "" && s.Credentials.LangfuseSecretKey != "",
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// Mask hides all but the last four characters of long keys and all of short ones.
func Mask(key string) string {
	switch {
	case key == "":
		return ""
	case len(key) <= 8:
		return "****"
	default:
		return "****" + key[len(key)-4:]
	}
}
