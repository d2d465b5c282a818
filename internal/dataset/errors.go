package dataset

import "errors"

var (
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("dataset already exists")
	ErrInference   = errors.New("type inference failed")
	ErrTranslation = errors.New("query translation failed")
	ErrIO          = errors.New("source read failed")
	ErrStore       = errors.New("store operation failed")
	ErrExecution   = errors.New("query execution failed")
)
