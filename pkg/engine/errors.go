package engine

import "errors"

var (
	// ErrNotReady is returned when a browser is requested before the
	// engine's global context finished initializing.
	ErrNotReady = errors.New("engine: context not ready")

	// ErrNotInitialized is returned when no engine has been registered
	// through Initialize.
	ErrNotInitialized = errors.New("engine: not initialized")

	// ErrShutdown is returned for operations issued after Shutdown.
	ErrShutdown = errors.New("engine: shut down")
)
