package coap

import "errors"

// Sentinel errors shared across packages. Each subpackage that needs a
// narrower error defines its own (e.g. transaction.ErrTableFull,
// reassembly.ErrOutOfOrder); these are the ones more than one layer
// needs to compare against with errors.Is.
var (
	ErrFormatError     = errors.New("coap: malformed message")
	ErrBadOption       = errors.New("coap: unrecognized critical option")
	ErrTokenTooLong    = errors.New("coap: token longer than 8 bytes")
	ErrBlockSize       = errors.New("coap: block size not a power of two in [16,1024]")
	ErrTruncated       = errors.New("coap: buffer too small to serialize message")
	ErrIllegalArgument = errors.New("coap: illegal argument")
)
