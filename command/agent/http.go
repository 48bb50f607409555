package agent

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/rs/cors"
)

const (
	// ErrInvalidMethod is returned when the HTTP method is not supported.
	ErrInvalidMethod = "Invalid method"
)

// allowCORS sets permissive CORS headers; the planning front-end is served
// from a different origin.
var allowCORS = cors.New(cors.Options{
	AllowedOrigins: []string{"*"},
	AllowedMethods: []string{"HEAD", "GET", "POST"},
	AllowedHeaders: []string{"*"},
})

// HTTPServer wraps an Agent and exposes it over HTTP.
type HTTPServer struct {
	agent      *Agent
	mux        *http.ServeMux
	listener   net.Listener
	listenerCh chan struct{}
	logger     hclog.Logger
	Addr       string
}

// NewHTTPServer starts the HTTP server over the agent.
func NewHTTPServer(agent *Agent, config *Config) (*HTTPServer, error) {
	ln, err := net.Listen("tcp", config.HTTPAddr())
	if err != nil {
		return nil, fmt.Errorf("starting HTTP listener: %w", err)
	}

	srv := &HTTPServer{
		agent:      agent,
		mux:        http.NewServeMux(),
		listener:   ln,
		listenerCh: make(chan struct{}),
		logger:     agent.logger.Named("http"),
		Addr:       ln.Addr().String(),
	}
	srv.registerHandlers()

	gzip, err := gziphandler.GzipHandlerWithOpts(gziphandler.MinSize(0))
	if err != nil {
		return nil, err
	}
	go func() {
		defer close(srv.listenerCh)
		http.Serve(ln, gzip(allowCORS.Handler(srv.mux)))
	}()
	return srv, nil
}

// Shutdown closes the listener and waits for the serve loop to exit.
func (s *HTTPServer) Shutdown() {
	if s != nil {
		s.logger.Debug("shutting down http server")
		s.listener.Close()
		<-s.listenerCh
	}
}

func (s *HTTPServer) registerHandlers() {
	s.mux.HandleFunc("/", s.wrap(s.IndexRequest))
	s.mux.HandleFunc("/planning_selection", s.wrap(s.PlanningSelectionRequest))
	s.mux.HandleFunc("/select_database/", s.wrap(s.SelectDatabaseRequest))
	s.mux.HandleFunc("/select_planning/", s.wrap(s.SelectPlanningRequest))

	s.mux.HandleFunc("/planning", s.wrap(s.PlanningViewRequest))
	s.mux.HandleFunc("/get_planning_data", s.wrap(s.PlanningViewRequest))

	s.mux.HandleFunc("/move_task", s.wrap(s.MoveTaskRequest))
	s.mux.HandleFunc("/resize_task", s.wrap(s.ResizeTaskRequest))
	s.mux.HandleFunc("/resize_and_move_task", s.wrap(s.ResizeAndMoveTaskRequest))
	s.mux.HandleFunc("/keyboard_move_task", s.wrap(s.KeyboardMoveTaskRequest))

	s.mux.HandleFunc("/api/reload-tasks", s.wrap(s.ReloadRequest))
	s.mux.HandleFunc("/api/reload-operators", s.wrap(s.ReloadRequest))
	s.mux.HandleFunc("/api/reload-affairs", s.wrap(s.ReloadRequest))
	s.mux.HandleFunc("/api/reload-all", s.wrap(s.ReloadRequest))

	s.mux.HandleFunc("/api/propagate-of", s.wrap(s.PropagateProductionsRequest))
	s.mux.HandleFunc("/api/propagate-operations", s.wrap(s.PropagateOperationsRequest))

	s.mux.HandleFunc("/debug/tasks", s.wrap(s.DebugTasksRequest))
}

// HTTPCodedError carries the HTTP status of a handler error.
type HTTPCodedError interface {
	error
	Code() int
}

// CodedError builds an HTTPCodedError.
func CodedError(c int, s string) HTTPCodedError {
	return &codedError{s, c}
}

type codedError struct {
	s    string
	code int
}

func (e *codedError) Error() string { return e.s }
func (e *codedError) Code() int     { return e.code }

// wrap turns an object-returning handler into an http.HandlerFunc with
// uniform logging, metrics and error mapping.
func (s *HTTPServer) wrap(handler func(resp http.ResponseWriter, req *http.Request) (interface{}, error)) func(resp http.ResponseWriter, req *http.Request) {
	return func(resp http.ResponseWriter, req *http.Request) {
		start := time.Now()
		defer func() {
			s.logger.Debug("request complete", "method", req.Method,
				"path", req.URL.Path, "duration", time.Since(start))
		}()
		metrics.IncrCounter([]string{"mecaplan", "http", "request"}, 1)

		obj, err := handler(resp, req)
		if err != nil {
			code := http.StatusInternalServerError
			if coded, ok := err.(HTTPCodedError); ok {
				code = coded.Code()
			}
			s.logger.Error("request failed", "method", req.Method,
				"path", req.URL.Path, "code", code, "error", err)
			resp.WriteHeader(code)
			resp.Write([]byte(err.Error()))
			return
		}
		if obj == nil {
			return
		}

		buf, err := json.Marshal(obj)
		if err != nil {
			s.logger.Error("response encoding failed", "path", req.URL.Path, "error", err)
			resp.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp.Header().Set("Content-Type", "application/json")
		resp.Write(buf)
	}
}

// decodeBody deserializes a JSON request body into out.
func decodeBody(req *http.Request, out interface{}) error {
	dec := json.NewDecoder(req.Body)
	return dec.Decode(out)
}

// pathID extracts the trailing path element after prefix.
func pathID(req *http.Request, prefix string) (string, error) {
	id := strings.TrimPrefix(req.URL.Path, prefix)
	id = strings.Trim(id, "/")
	if id == "" || strings.Contains(id, "/") {
		return "", CodedError(http.StatusBadRequest, "missing identifier in path")
	}
	return id, nil
}
