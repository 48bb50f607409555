package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/mecaplan/mecaplan/helper/testlog"
	"github.com/mecaplan/mecaplan/projection"
	"github.com/mecaplan/mecaplan/structs"
	"github.com/shoenig/test/must"
)

func devAgent(t *testing.T) *Agent {
	t.Helper()
	config := DefaultConfig()
	config.Dev = true
	config.Port = 0

	a, err := NewAgent(config, testlog.HCLogger(t))
	must.NoError(t, err)
	t.Cleanup(a.Shutdown)
	return a
}

func httpGet(t *testing.T, a *Agent, path string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://%s%s", a.httpServer.Addr, path))
	must.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		must.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp
}

func httpPost(t *testing.T, a *Agent, path string, body, out interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		must.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(fmt.Sprintf("http://%s%s", a.httpServer.Addr, path), "application/json", &buf)
	must.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		must.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp
}

func TestHTTP_Selection(t *testing.T) {
	a := devAgent(t)

	var sel selectionPayload
	resp := httpGet(t, a, "/", &sel)
	must.Eq(t, http.StatusOK, resp.StatusCode)
	must.Eq(t, []string{"dev"}, sel.Databases)
	must.Eq(t, "dev", sel.ActiveDatabase)
	must.Len(t, 1, sel.Plannings)
	must.Eq(t, "Atelier", sel.Plannings[0].Planning.Name)
	must.Eq(t, 10, sel.Plannings[0].TaskCount)
	must.Eq(t, 8, sel.Plannings[0].AffairCount)
}

func TestHTTP_SelectPlanningAndView(t *testing.T) {
	a := devAgent(t)

	resp := httpGet(t, a, "/select_planning/1", nil)
	must.Eq(t, http.StatusOK, resp.StatusCode)

	var view projection.View
	resp = httpGet(t, a, "/get_planning_data", &view)
	must.Eq(t, http.StatusOK, resp.StatusCode)
	must.Len(t, 10, view.Rows)
	must.Len(t, 10, view.Tasks)
	must.Len(t, 8, view.Affairs)
	must.Eq(t, view.Horizon, len(view.Slots))
}

func TestHTTP_SelectUnknownPlanning(t *testing.T) {
	a := devAgent(t)

	resp := httpGet(t, a, "/select_planning/99", nil)
	must.Eq(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_MoveTask(t *testing.T) {
	a := devAgent(t)
	httpGet(t, a, "/select_planning/1", nil)

	var dump struct {
		Tasks []*structs.Task `json:"tasks"`
	}
	httpGet(t, a, "/debug/tasks", &dump)
	must.SliceNotEmpty(t, dump.Tasks)

	var res structs.EditResult
	resp := httpPost(t, a, "/move_task", &structs.TaskMoveRequest{
		TaskID:    dump.Tasks[0].ID,
		RowID:     10,
		StartSlot: 30,
	}, &res)
	must.Eq(t, http.StatusOK, resp.StatusCode)
	must.True(t, res.Success)
	must.Eq(t, 30, res.NewSlot)
	must.Eq(t, int64(10), res.NewRowID)
}

func TestHTTP_MoveTask_UserErrorIs200(t *testing.T) {
	a := devAgent(t)
	httpGet(t, a, "/select_planning/1", nil)

	var res structs.EditResult
	resp := httpPost(t, a, "/move_task", &structs.TaskMoveRequest{
		TaskID:    "no-such-task",
		RowID:     1,
		StartSlot: 0,
	}, &res)
	must.Eq(t, http.StatusOK, resp.StatusCode)
	must.False(t, res.Success)
	must.StrContains(t, res.Error, "task not found")
}

func TestHTTP_MalformedEditBodyIs200(t *testing.T) {
	a := devAgent(t)
	httpGet(t, a, "/select_planning/1", nil)

	for _, path := range []string{"/move_task", "/resize_task", "/resize_and_move_task", "/keyboard_move_task"} {
		body := bytes.NewBufferString(`{"task_id":123}`)
		resp, err := http.Post(fmt.Sprintf("http://%s%s", a.httpServer.Addr, path), "application/json", body)
		must.NoError(t, err)

		var res structs.EditResult
		must.Eq(t, http.StatusOK, resp.StatusCode)
		must.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		resp.Body.Close()
		must.False(t, res.Success)
		must.StrContains(t, res.Error, "invalid request")
	}
}

func TestHTTP_EditWithoutPlanning(t *testing.T) {
	a := devAgent(t)

	resp := httpPost(t, a, "/move_task", &structs.TaskMoveRequest{TaskID: "x"}, nil)
	must.Eq(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_KeyboardMove(t *testing.T) {
	a := devAgent(t)
	httpGet(t, a, "/select_planning/1", nil)

	var dump struct {
		Tasks []*structs.Task `json:"tasks"`
	}
	httpGet(t, a, "/debug/tasks", &dump)

	var res structs.EditResult
	resp := httpPost(t, a, "/keyboard_move_task", &structs.KeyboardMoveRequest{
		TaskID:    dump.Tasks[0].ID,
		Direction: "sideways",
	}, &res)
	must.Eq(t, http.StatusOK, resp.StatusCode)
	must.False(t, res.Success)
}

func TestHTTP_Reload(t *testing.T) {
	a := devAgent(t)
	httpGet(t, a, "/select_planning/1", nil)

	var out map[string]interface{}
	resp := httpPost(t, a, "/api/reload-tasks", nil, &out)
	must.Eq(t, http.StatusOK, resp.StatusCode)
	must.Eq(t, true, out["success"])
	must.Eq(t, "tasks", out["reloaded"])
}

func TestHTTP_ReloadWithoutPlanning(t *testing.T) {
	a := devAgent(t)

	resp := httpPost(t, a, "/api/reload-all", nil, nil)
	must.Eq(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_MethodChecks(t *testing.T) {
	a := devAgent(t)

	resp := httpGet(t, a, "/move_task", nil)
	must.Eq(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = httpPost(t, a, "/planning_selection", nil, nil)
	must.Eq(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTP_SelectDatabase(t *testing.T) {
	a := devAgent(t)

	resp := httpGet(t, a, "/select_database/dev", nil)
	must.Eq(t, http.StatusOK, resp.StatusCode)

	resp = httpGet(t, a, "/select_database/ghost", nil)
	must.Eq(t, http.StatusNotFound, resp.StatusCode)
}
