package fl

import "errors"

var (
	// ErrConnect indicates that the instruction stream could not be established.
	ErrConnect = errors.New("failed to connect to federation server")
	// ErrDecode indicates a malformed inbound message or parameter blob.
	ErrDecode = errors.New("failed to decode message")
	// ErrConfig indicates an invalid round configuration value.
	ErrConfig = errors.New("invalid round configuration")
	// ErrShapeMismatch indicates parameters whose layout differs from the model's.
	ErrShapeMismatch = errors.New("parameter shape mismatch")
	// ErrState indicates an operation issued in the wrong engine state.
	ErrState = errors.New("invalid engine state")
	// ErrStream indicates a transport failure on an established stream.
	ErrStream = errors.New("instruction stream failed")
	// ErrTrainingTimeout indicates a fit round that did not complete in time.
	ErrTrainingTimeout = errors.New("training did not complete before the round timeout")
	// ErrCanceled indicates that a round was abandoned because the session stopped.
	ErrCanceled = errors.New("round canceled")
)
