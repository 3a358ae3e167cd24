package types

import "errors"

// Error taxonomy shared by every component. Callers wrap these with context
// and the REST layer maps them to HTTP status codes with errors.Is.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrNotAFile            = errors.New("not a file")
	ErrNotAFolder          = errors.New("not a folder")
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrProcessSpawn        = errors.New("process spawn failure")
	ErrTransportClosed     = errors.New("transport closed")
	ErrBadRequest          = errors.New("bad request")
	ErrUnsupportedFileType = errors.New("unsupported file type")
)
