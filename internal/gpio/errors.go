package gpio

import "errors"

// ErrUnknownLine is returned for line offsets outside a chip's range.
var ErrUnknownLine = errors.New("unknown line")
