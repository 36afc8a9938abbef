package protocol

import "errors"

// Decode errors produced by the wire codec (spec §7: DecodeError). All three
// are recovered locally by the caller: the offending frame is dropped and
// logged at debug, the connection is kept open.
var (
	ErrShortFrame        = errors.New("short frame")
	ErrOversizedFrame    = errors.New("oversized frame")
	ErrUnknownPacketType = errors.New("unknown packet type")
)
