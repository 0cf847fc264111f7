package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrNetwork        = errors.New("network unavailable")
	ErrStorage        = errors.New("local storage failure")
	ErrSyncInProgress = errors.New("sync already in progress")
)
