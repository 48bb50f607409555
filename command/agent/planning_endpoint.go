package agent

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/mecaplan/mecaplan/projection"
	"github.com/mecaplan/mecaplan/structs"
	"github.com/mecaplan/mecaplan/upstream"
)

// selectionPayload is the planning-selection landing document.
type selectionPayload struct {
	Databases      []string                    `json:"databases"`
	ActiveDatabase string                      `json:"active_database"`
	Plannings      []*upstream.PlanningSummary `json:"plannings"`
}

// IndexRequest serves the landing document: databases and the plannings of
// the active one.
func (s *HTTPServer) IndexRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.URL.Path != "/" {
		return nil, CodedError(http.StatusNotFound, "not found")
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	return s.selection(req)
}

// PlanningSelectionRequest lists the plannings of the active database with
// task and affair counts.
func (s *HTTPServer) PlanningSelectionRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	return s.selection(req)
}

func (s *HTTPServer) selection(req *http.Request) (interface{}, error) {
	plannings, err := s.agent.Plannings(req.Context())
	if err != nil {
		return nil, err
	}
	return &selectionPayload{
		Databases:      s.agent.Databases(),
		ActiveDatabase: s.agent.ActiveDatabase(),
		Plannings:      plannings,
	}, nil
}

// SelectDatabaseRequest switches the active database.
func (s *HTTPServer) SelectDatabaseRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	name, err := pathID(req, "/select_database/")
	if err != nil {
		return nil, err
	}
	if err := s.agent.SelectDatabase(name); err != nil {
		return nil, CodedError(http.StatusNotFound, err.Error())
	}
	return map[string]interface{}{"success": true, "database": name}, nil
}

// SelectPlanningRequest loads a planning into memory.
func (s *HTTPServer) SelectPlanningRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	raw, err := pathID(req, "/select_planning/")
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, CodedError(http.StatusBadRequest, "planning id must be numeric")
	}
	if err := s.agent.SelectPlanning(req.Context(), id); err != nil {
		if errors.Is(err, structs.ErrUnknownPlanning) {
			return nil, CodedError(http.StatusNotFound, err.Error())
		}
		return nil, err
	}
	return map[string]interface{}{"success": true, "planning_id": id}, nil
}

// PlanningViewRequest returns the full projection of the active planning.
func (s *HTTPServer) PlanningViewRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	sess, err := s.agent.Session()
	if err != nil {
		return nil, CodedError(http.StatusBadRequest, err.Error())
	}
	return projection.Build(sess, s.agent.config.MinHorizon, s.agent.config.HorizonMargin)
}

// ReloadRequest re-reads part of the active planning from upstream. The
// scope is the path suffix after /api/reload-.
func (s *HTTPServer) ReloadRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	scope := ReloadScope(strings.TrimPrefix(req.URL.Path, "/api/reload-"))
	if err := s.agent.Reload(req.Context(), scope); err != nil {
		if errors.Is(err, structs.ErrNoPlanningSelected) {
			return nil, CodedError(http.StatusBadRequest, err.Error())
		}
		return nil, err
	}
	return map[string]interface{}{"success": true, "reloaded": string(scope)}, nil
}

// DebugTasksRequest dumps the raw task set of the active planning.
func (s *HTTPServer) DebugTasksRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	sess, err := s.agent.Session()
	if err != nil {
		return nil, CodedError(http.StatusBadRequest, err.Error())
	}
	sess.RLock()
	defer sess.RUnlock()
	tasks, err := sess.Store().Tasks()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"count": len(tasks), "tasks": tasks}, nil
}
