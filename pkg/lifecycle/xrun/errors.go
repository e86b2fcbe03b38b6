package xrun

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSignal 所有 SignalError 都匹配 errors.Is(err, ErrSignal)
	ErrSignal = errors.New("received signal")

	ErrNilFunc         = errors.New("xrun: nil function")
	ErrInvalidInterval = errors.New("xrun: interval must be positive")
)

// SignalError Group 因收到信号而取消时 Wait 返回的错误
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	if e.Signal == nil {
		return "received signal <nil>"
	}
	return fmt.Sprintf("received signal %s", e.Signal)
}

func (e *SignalError) Unwrap() error { return ErrSignal }
