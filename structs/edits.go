package structs

// Direction is a keyboard nudge direction.
type Direction string

const (
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
)

// Valid reports whether the direction is one of the four nudges.
func (d Direction) Valid() bool {
	switch d {
	case DirectionLeft, DirectionRight, DirectionUp, DirectionDown:
		return true
	}
	return false
}

// Horizontal reports whether the nudge moves along the slot axis.
func (d Direction) Horizontal() bool {
	return d == DirectionLeft || d == DirectionRight
}

// TaskMoveRequest moves a task to a row and start slot. The cascade makes
// room by pushing colliding tasks right.
type TaskMoveRequest struct {
	TaskID    string `json:"task_id"`
	RowID     int64  `json:"operator_id"`
	StartSlot int    `json:"start_slot"`
}

// TaskResizeRequest sets a task duration in slots.
type TaskResizeRequest struct {
	TaskID   string `json:"task_id"`
	Duration int    `json:"duration"`
}

// TaskResizeMoveRequest is the combined left-handle edit: new row, new start
// slot and new duration applied together.
type TaskResizeMoveRequest struct {
	TaskID    string `json:"task_id"`
	RowID     int64  `json:"operator_id"`
	StartSlot int    `json:"start_slot"`
	Duration  int    `json:"duration"`
}

// KeyboardMoveRequest nudges a task one slot or one row.
type KeyboardMoveRequest struct {
	TaskID    string    `json:"task_id"`
	Direction Direction `json:"direction"`
}

// EditResult is the payload returned by every edit operation. Success false
// carries an error message; Blocked true means a keyboard nudge could not
// push and nothing changed. The previous and new slot/duration are reported
// so the client can reconcile without refetching.
type EditResult struct {
	Success bool   `json:"success"`
	Blocked bool   `json:"blocked,omitempty"`
	Error   string `json:"error,omitempty"`

	TaskID       string `json:"task_id,omitempty"`
	PrevRowID    int64  `json:"prev_operator_id,omitempty"`
	NewRowID     int64  `json:"new_operator_id,omitempty"`
	PrevSlot     int    `json:"prev_slot"`
	NewSlot      int    `json:"new_slot"`
	PrevDuration int    `json:"prev_duration,omitempty"`
	NewDuration  int    `json:"new_duration,omitempty"`
}

// Errorf builds a failed EditResult from an error.
func Errorf(err error) *EditResult {
	return &EditResult{Success: false, Error: err.Error()}
}
