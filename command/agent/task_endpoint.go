package agent

import (
	"fmt"
	"net/http"

	"github.com/mecaplan/mecaplan/structs"
)

// invalidEditBody maps a malformed edit payload to the user-error envelope.
// Bad input from the client is reported the same way as a rejected edit,
// HTTP 200 with success false, not a coded 4xx.
func invalidEditBody(err error) *structs.EditResult {
	return structs.Errorf(fmt.Errorf("invalid request: %v", err))
}

// MoveTaskRequest moves a task to a row and start slot.
func (s *HTTPServer) MoveTaskRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	coord, err := s.agent.Coordinator()
	if err != nil {
		return nil, CodedError(http.StatusBadRequest, err.Error())
	}
	var args structs.TaskMoveRequest
	if err := decodeBody(req, &args); err != nil {
		return invalidEditBody(err), nil
	}
	return coord.Move(req.Context(), &args), nil
}

// ResizeTaskRequest sets a task duration in slots.
func (s *HTTPServer) ResizeTaskRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	coord, err := s.agent.Coordinator()
	if err != nil {
		return nil, CodedError(http.StatusBadRequest, err.Error())
	}
	var args structs.TaskResizeRequest
	if err := decodeBody(req, &args); err != nil {
		return invalidEditBody(err), nil
	}
	return coord.Resize(req.Context(), &args), nil
}

// ResizeAndMoveTaskRequest applies a combined row, slot and duration edit.
func (s *HTTPServer) ResizeAndMoveTaskRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	coord, err := s.agent.Coordinator()
	if err != nil {
		return nil, CodedError(http.StatusBadRequest, err.Error())
	}
	var args structs.TaskResizeMoveRequest
	if err := decodeBody(req, &args); err != nil {
		return invalidEditBody(err), nil
	}
	return coord.ResizeAndMove(req.Context(), &args), nil
}

// KeyboardMoveTaskRequest nudges a task one slot or one row.
func (s *HTTPServer) KeyboardMoveTaskRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	coord, err := s.agent.Coordinator()
	if err != nil {
		return nil, CodedError(http.StatusBadRequest, err.Error())
	}
	var args structs.KeyboardMoveRequest
	if err := decodeBody(req, &args); err != nil {
		return invalidEditBody(err), nil
	}
	return coord.KeyboardNudge(req.Context(), &args), nil
}
