package boblight

import "errors"

var (
	// ErrConnectFailure indicates the transport could not be opened or the handshake failed.
	ErrConnectFailure = errors.New("boblight connect failed")

	// ErrSyncFailure indicates a frame could not be pushed over an assumed-live connection.
	ErrSyncFailure = errors.New("boblight sync failed")

	// ErrInvalidChannel indicates a channel index that the connected server does not report.
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrHardwareUnavailable indicates the session is not connected.
	ErrHardwareUnavailable = errors.New("boblight server not connected")
)
