// Package server is the web front end: a single page plus a JSON API for
// sessions, generation, download and link validation.
package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ppt_generator/flow"
	"ppt_generator/linkcheck"
	"ppt_generator/render"
	"ppt_generator/sessions"
	"ppt_generator/storage"
)

//go:embed web/index.html
var indexHTML []byte

// Pipelines checks run input and builds a pipeline for a session's credentials.
// *flow.Builder implements it.
type Pipelines interface {
	Check(topic string, creds sessions.Credentials) error
	Build(ctx context.Context, creds sessions.Credentials) (*flow.Pipeline, error)
}

// Validator is the part of linkcheck the API exposes.
type Validator interface {
	Validate(ctx context.Context, url string) linkcheck.Result
	ValidateBatch(ctx context.Context, urls []string) []linkcheck.Result
}

type Server struct {
	store     sessions.Store
	pipelines Pipelines
	validator Validator
	timeout   time.Duration
	verbose   bool
	logger    *log.Logger
}

// Options are the optional settings of a Server.
type Options struct {
	// Timeout bounds one generation run. Zero means no limit beyond the request.
	Timeout time.Duration
	Verbose bool
	Logger  *log.Logger
}

func New(store sessions.Store, pipelines Pipelines, validator Validator, opts Options) (*Server, error) {
	if store == nil || pipelines == nil || validator == nil {
		return nil, errors.New("server needs a session store, pipelines and a validator")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		store:     store,
		pipelines: pipelines,
		validator: validator,
		timeout:   opts.Timeout,
		verbose:   opts.Verbose,
		logger:    logger,
	}, nil
}

func (s *Server) infof(format string, args ...any) {
	if !s.verbose {
		return
	}
	s.logger.Printf("[server] "+format, args...)
}

// Routes builds the gin engine.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())

	r.GET("/", s.handleIndex)
	r.GET("/health", handleHealth)

	api := r.Group("/api")
	api.POST("/sessions", s.handleSessionCreate)
	api.GET("/sessions/:id", s.handleSessionGet)
	api.PUT("/sessions/:id/credentials", s.handleCredentials)
	api.POST("/sessions/:id/generate", s.handleGenerate)
	api.GET("/sessions/:id/download", s.handleDownload)
	api.POST("/validate", s.handleValidate)
	return r
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Sessions ---

func (s *Server) handleSessionCreate(c *gin.Context) {
	var creds sessions.Credentials
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&creds); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	sess, err := s.store.Create(c.Request.Context(), creds)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	s.infof("session %s created", sess.ID)
	c.JSON(http.StatusCreated, sess.View())
}

func (s *Server) handleSessionGet(c *gin.Context) {
	sess, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) handleCredentials(c *gin.Context) {
	var creds sessions.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := sessions.SetCredentials(c.Request.Context(), s.store, c.Param("id"), creds)
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

// --- Generation ---

type generateReq struct {
	Topic string `json:"topic"`
}

type generateResp struct {
	Session    sessions.View  `json:"session"`
	Title      string         `json:"title"`
	Markdown   string         `json:"markdown"`
	HTML       string         `json:"html"`
	Slides     []render.Slide `json:"slides"`
	Path       string         `json:"path"`
	DurationMS int64          `json:"duration_ms"`
}

// handleGenerate runs the whole pipeline inside the request. The session is
// marked running first so a second submit from the same session gets 409.
func (s *Server) handleGenerate(c *gin.Context) {
	var req generateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	topic := strings.TrimSpace(req.Topic)
	id := c.Param("id")
	ctx := c.Request.Context()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		s.storeError(c, err)
		return
	}
	if err := s.pipelines.Check(topic, sess.Credentials); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": flow.UserMessage(err)})
		return
	}
	if _, err := sessions.StartRun(ctx, s.store, id, topic); err != nil {
		s.storeError(c, err)
		return
	}

	// The session must leave the running state even if the client goes away
	// or a crew panics; gin.Recovery answers the panic after this runs.
	bg := context.WithoutCancel(ctx)
	finished := false
	defer func() {
		if finished {
			return
		}
		if _, err := sessions.FailRun(bg, s.store, id, "generation stopped unexpectedly"); err != nil {
			s.logger.Printf("[server] session %s: record failure: %v", id, err)
		}
	}()
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := s.run(runCtx, id, topic, sess.Credentials)
	if err != nil {
		msg := flow.UserMessage(err)
		if _, ferr := sessions.FailRun(bg, s.store, id, msg); ferr != nil {
			s.logger.Printf("[server] session %s: record failure: %v", id, ferr)
		}
		finished = true
		status := http.StatusBadGateway
		if errors.Is(err, flow.ErrMissingCredentials) {
			status = http.StatusBadRequest
		}
		s.logger.Printf("[server] generate %q for session %s: %v", topic, id, err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	html, err := render.HTML(out.Document.Markdown)
	if err != nil {
		s.logger.Printf("[server] render %q: %v", topic, err)
	}
	done, err := sessions.FinishRun(bg, s.store, id, sessions.Result{
		Topic:    out.Topic,
		Title:    out.Document.Title,
		Markdown: out.Document.Markdown,
		Path:     out.Path,
	})
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	finished = true
	c.JSON(http.StatusOK, generateResp{
		Session:    done.View(),
		Title:      out.Document.Title,
		Markdown:   out.Document.Markdown,
		HTML:       html,
		Slides:     render.Slides(out.Document.Markdown),
		Path:       out.Path,
		DurationMS: out.Duration.Milliseconds(),
	})
}

func (s *Server) run(ctx context.Context, id, topic string, creds sessions.Credentials) (flow.Output, error) {
	p, err := s.pipelines.Build(ctx, creds)
	if err != nil {
		return flow.Output{}, err
	}
	s.infof("session %s: generating %q", id, topic)
	return p.Run(ctx, flow.Request{Topic: topic, SessionID: id})
}

func (s *Server) handleDownload(c *gin.Context) {
	sess, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	if sess.Result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no presentation has been generated in this session"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", storage.DownloadName(sess.Result.Topic)))
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(sess.Result.Markdown))
}

// --- Link validation ---

type validateReq struct {
	URL  string   `json:"url"`
	URLs []string `json:"urls"`
}

// handleValidate checks one URL (with its reason when invalid) or a batch
// (valid results only).
func (s *Server) handleValidate(c *gin.Context) {
	var req validateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch {
	case len(req.URLs) > 0:
		c.JSON(http.StatusOK, gin.H{"results": s.validator.ValidateBatch(c.Request.Context(), req.URLs)})
	case req.URL != "":
		c.JSON(http.StatusOK, s.validator.Validate(c.Request.Context(), req.URL))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "url or urls is required"})
	}
}

// --- Helpers ---

func (s *Server) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sessions.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, sessions.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.fail(c, http.StatusInternalServerError, err)
	}
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	s.logger.Printf("[server] %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.infof("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}
