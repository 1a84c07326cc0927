package probe

import "errors"

// Probe failures. Callers match them with errors.Is; none of them is fatal,
// they only mean no data was obtained for this attempt.
var (
	ErrConnect  = errors.New("connect to server failed")
	ErrProtocol = errors.New("unexpected or malformed frame")
	ErrTimeout  = errors.New("no matching response before deadline")
	ErrDecode   = errors.New("status response could not be decoded")
)
