package dispatch

import "errors"

var (
	ErrBrokerNil       = errors.New("broker cannot be nil")
	ErrPayloadNil      = errors.New("payload cannot be nil")
	ErrJobNil          = errors.New("job cannot be nil")
	ErrJobNotFound     = errors.New("job not found")
	ErrNoJobToClaim    = errors.New("no job available to claim")
	ErrNoHandlers      = errors.New("no handlers registered")
	ErrHandlerNotFound = errors.New("no handler registered for job kind")

	ErrWorkerNotRunning  = errors.New("worker is not running")
	ErrWorkerOverloaded  = errors.New("worker is overloaded")
	ErrHealthcheckFailed = errors.New("dispatch healthcheck failed")
)
