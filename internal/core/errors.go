// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors, wrapped with %w by callers and matched with errors.Is.
var (
	// Frame dissection errors. None of these are fatal to a run.
	ErrPacketTooShort   = errors.New("flowstat: packet too short")
	ErrNotIPv4          = errors.New("flowstat: not an IPv4 frame")
	ErrUnsupportedProto = errors.New("flowstat: unsupported protocol")
	ErrFiltered         = errors.New("flowstat: rejected by packet filter")

	// Capture source errors
	ErrSourceOpen          = errors.New("flowstat: cannot open capture source")
	ErrUnsupportedLinkType = errors.New("flowstat: unsupported link type")

	// Configuration errors
	ErrConfigInvalid = errors.New("flowstat: invalid configuration")
)
