package structs

import (
	"errors"
)

var (
	// ErrTaskNotFound is returned when an edit references an unknown task id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNoSpace is returned when a cascade or sweep cannot place every
	// affected task within the horizon.
	ErrNoSpace = errors.New("not enough space")

	// ErrRowNotFound is returned when an edit references an unknown row id.
	ErrRowNotFound = errors.New("row not found")

	// ErrUnknownPlanning is returned when no planning with the requested id
	// exists upstream.
	ErrUnknownPlanning = errors.New("unknown planning")

	// ErrNoPlanningSelected is returned by endpoints that require a planning
	// to have been loaded first.
	ErrNoPlanningSelected = errors.New("no planning selected")

	// ErrNoDatabaseSelected is returned by endpoints that require an
	// upstream database connection.
	ErrNoDatabaseSelected = errors.New("no database selected")

	// ErrInvalidDirection is returned for keyboard moves outside
	// left/right/up/down.
	ErrInvalidDirection = errors.New("invalid direction")
)
