package protocol

import "errors"

// ErrInvalidClientID is returned by ValidateClientID when an id violates
// the length or alphabet constraint from spec §4.9.
var ErrInvalidClientID = errors.New("protocol: invalid client id")
