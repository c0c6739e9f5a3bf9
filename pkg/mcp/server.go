package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/rulepool/pkg/generate"
	"github.com/macropower/rulepool/pkg/log"
	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/pool"
	"github.com/macropower/rulepool/pkg/render"
	"github.com/macropower/rulepool/pkg/version"
)

// WatchStatus represents the state of a watched generation.
type WatchStatus string

const (
	// StatusIdle indicates no watched generation has run.
	StatusIdle WatchStatus = "idle"
	// StatusRunning indicates a watched generation is running.
	StatusRunning WatchStatus = "running"
	// StatusCompleted indicates the last watched generation succeeded.
	StatusCompleted WatchStatus = "completed"
	// StatusError indicates the last watched generation failed.
	StatusError WatchStatus = "error"
)

// WatchState tracks the generations of a [generate.Generator] watching a
// mode file alongside the server.
type WatchState struct {
	LastRun  time.Time
	Err      error
	Result   *generate.Result
	Status   WatchStatus
	Trigger  string
	RunCount int64
}

// RuleStore is the rule pool served by a [Server], e.g. a [*pool.Pool].
type RuleStore interface {
	generate.RuleStore
	Search(c pool.Criteria) *pool.SearchResult
}

// Server implements the MCP server for rulepool.
type Server struct {
	store     RuleStore
	tracer    trace.Tracer
	server    *mcp.Server
	modes     *mode.Manager
	templates *render.TemplateSource
	eventCh   chan generate.Event
	address   string
	state     WatchState
	rc        render.Context
	mu        sync.RWMutex
	closeOnce sync.Once
}

// Opt configures a [Server].
type Opt func(*Server)

// WithModeManager sets the manager used to load mode files.
func WithModeManager(m *mode.Manager) Opt {
	return func(s *Server) {
		s.modes = m
	}
}

// WithTemplates sets the document template source.
func WithTemplates(ts *render.TemplateSource) Opt {
	return func(s *Server) {
		s.templates = ts
	}
}

// WithRenderContext sets the render options of rendered and generated
// documents.
func WithRenderContext(rc render.Context) Opt {
	return func(s *Server) {
		s.rc = rc
	}
}

// WithWatcher subscribes the server to the events of g, which should be
// running [generate.Generator.Watch]. The latest run is reported by the
// generation_status tool.
func WithWatcher(g *generate.Generator) Opt {
	return func(s *Server) {
		g.Subscribe(s.eventCh)
	}
}

// NewServer creates a new MCP server over store. An empty address serves
// stdio; otherwise streamable HTTP is served on address.
func NewServer(address string, store RuleStore, opts ...Opt) (*Server, error) {
	if store == nil {
		return nil, errors.New("rule store is required")
	}

	impl := &mcp.Implementation{
		Name:    name,
		Version: version.GetVersion(),
	}

	s := &Server{
		address:   address,
		store:     store,
		tracer:    otel.Tracer("mcp"),
		server:    mcp.NewServer(impl, &mcp.ServerOptions{Instructions: instructions}),
		templates: render.NewTemplateSource(""),
		rc:        render.DefaultContext(),
		eventCh:   make(chan generate.Event, 100),
		state: WatchState{
			Status: StatusIdle,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.modes == nil {
		s.modes = mode.NewManager(store)
	}

	s.registerTools()

	go s.processEvents()

	return s, nil
}

// registerTools registers all available tools with the MCP server.
func (s *Server) registerTools() {
	s.registerRuleTools()
	s.registerModeTools()
	s.registerStatusTool()
}

// processEvents records the state of watched generations.
func (s *Server) processEvents() {
	for event := range s.eventCh {
		s.mu.Lock()

		switch e := event.(type) {
		case generate.EventStart:
			s.state.Status = StatusRunning
			s.state.Trigger = e.Trigger

		case generate.EventEnd:
			s.state.RunCount++
			s.state.LastRun = time.Now()
			s.state.Result = e.Result
			s.state.Err = e.Err

			if e.Err != nil {
				s.state.Status = StatusError
			} else {
				s.state.Status = StatusCompleted
			}
		}

		s.mu.Unlock()
	}
}

// State returns a copy of the watch state.
func (s *Server) State() WatchState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// generator returns a generator sharing the server's store, manager and
// templates.
func (s *Server) generator(dryRun bool) *generate.Generator {
	return generate.New(s.store,
		generate.WithModeManager(s.modes),
		generate.WithTemplates(s.templates),
		generate.WithRenderContext(s.rc),
		generate.WithDryRun(dryRun),
	)
}

// loadMode loads the mode file at path, bypassing the manager's cache so
// that edits between tool calls are seen.
func (s *Server) loadMode(ctx context.Context, path string, opts mode.LoadOptions) (*mode.Configuration, error) {
	s.modes.ClearCache()
	s.templates.ClearCache()

	cfg, err := s.modes.Load(ctx, path, opts)
	if err != nil {
		return nil, err //nolint:wrapcheck // Already carries the path.
	}

	return cfg.Clone(), nil
}

func (s *Server) Server() *mcp.Server {
	return s.server
}

// Close stops event processing. The watched generator, if any, must be
// stopped first.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.eventCh)
	})
}

// Serve starts the MCP server.
func (s *Server) Serve(ctx context.Context) error {
	log.WithContext(ctx).InfoContext(ctx, "starting MCP server", slog.String("address", s.address))

	if s.address == "" {
		err := s.serveStdio(ctx)
		if err != nil {
			return fmt.Errorf("serve stdio: %w", err)
		}

		return nil
	}

	err := s.serveHTTP(ctx)
	if err != nil {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	return nil
}

func (s *Server) serveHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)

	server := &http.Server{
		Addr:    s.address,
		Handler: handler,

		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			slog.Error("shutdown MCP server", slog.Any("err", err))
		}
	}()

	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("MCP server failed: %w", err)
	}

	return nil
}

func (s *Server) serveStdio(ctx context.Context) error {
	t := mcp.NewLoggingTransport(mcp.NewStdioTransport(), os.Stderr)

	err := s.server.Run(ctx, t)
	if err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}

	return nil
}
