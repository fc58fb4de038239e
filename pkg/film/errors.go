package film

import "errors"

var (
	ErrSizeMismatch       = errors.New("film: buffer size mismatch")
	ErrGroupMismatch      = errors.New("film: buffer group count mismatch")
	ErrConfigMismatch     = errors.New("film: buffer config count mismatch")
	ErrTypeMismatch       = errors.New("film: buffer type mismatch")
	ErrResolutionMismatch = errors.New("film: resolution mismatch")
	ErrBuffersNotCreated  = errors.New("film: buffers not created")
	ErrBuffersCreated     = errors.New("film: buffers already created")
)
