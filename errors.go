package irccore

import "errors"

// ErrNotConnected is returned by operations that require an established
// session when the stack is not connected.
var ErrNotConnected = errors.New("not connected to an IRC server")
