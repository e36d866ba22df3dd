package domain

import "errors"

var (
	// ErrConfiguration marks a setup bug: impossible grid parameters or a
	// response set that does not belong to the challenge.
	ErrConfiguration = errors.New("invalid challenge configuration")

	ErrIndexOutOfRange = errors.New("cell index out of range")

	// ErrNoFaceDetected is the only error a user can trigger. It never changes
	// session state.
	ErrNoFaceDetected = errors.New("no face detected")
)
