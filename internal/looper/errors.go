package looper

import "errors"

var (
	ErrNotInitialized  = errors.New("looper: run called before start")
	ErrInvalidArgument = errors.New("looper: invalid argument")
)
