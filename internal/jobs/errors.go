package jobs

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTerminal     = errors.New("job already terminal")
)

const (
	ErrorCodeValidation = "VALIDATION_ERROR"
	ErrorCodeFetch      = "FETCH_FAILED"
	ErrorCodeExtract    = "EXTRACT_FAILED"
	ErrorCodeGeneration = "GENERATION_FAILED"
	ErrorCodePersist    = "PERSIST_FAILED"
	ErrorCodeRender     = "RENDER_FAILED"
	ErrorCodeInternal   = "INTERNAL_ERROR"
)
