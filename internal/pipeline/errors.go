package pipeline

import "errors"

var (
	ErrStageNotFound      = errors.New("stage not found")
	ErrStageLocked        = errors.New("stage is locked")
	ErrStageNotEmpty      = errors.New("stage still holds candidates")
	ErrStageOrderMismatch = errors.New("stage order does not match registered stages")
	ErrUnknownApplication = errors.New("unknown application")
	ErrUnsupportedAction  = errors.New("unsupported bulk action")
	ErrNoTargets          = errors.New("no target applications")
	ErrForbidden          = errors.New("role may not perform this action")
	ErrActionPending      = errors.New("another action is pending")
	ErrExportInProgress   = errors.New("export already in progress")
	ErrUnsupportedFormat  = errors.New("unsupported export format")
	ErrStaleVersion       = errors.New("server payload is older than local record")
)
