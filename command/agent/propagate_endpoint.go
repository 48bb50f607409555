package agent

import (
	"net/http"
)

// PropagateProductionsRequest shifts upstream production starts to match the
// plan.
func (s *HTTPServer) PropagateProductionsRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	prop, err := s.agent.Propagator()
	if err != nil {
		return nil, CodedError(http.StatusBadRequest, err.Error())
	}
	totals, err := prop.ProductionStarts(req.Context())
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true, "totals": totals}, nil
}

// PropagateOperationsRequest recomputes upstream operation lines from the
// plan.
func (s *HTTPServer) PropagateOperationsRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	prop, err := s.agent.Propagator()
	if err != nil {
		return nil, CodedError(http.StatusBadRequest, err.Error())
	}
	totals, err := prop.OperationStarts(req.Context())
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true, "totals": totals}, nil
}
