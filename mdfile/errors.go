package mdfile

import "errors"

var (
	errCorruptMagic    = errors.New("mdfile: bad magic")
	errCorruptChecksum = errors.New("mdfile: checksum mismatch")
)

// ErrRetryExhausted is returned when a header, index, or page read
// never stabilized within its configured retry bound (spec §7's
// Retry-exhausted kind).
var ErrRetryExhausted = errors.New("mdfile: retry bound exhausted")

// ErrTickSkew is returned when header.tick_num exceeds index.tick_num
// by more than 1, or when a freshly-loaded header's tick has decreased
// relative to the cached header (spec §4.2).
var ErrTickSkew = errors.New("mdfile: impossible header/index tick skew")
