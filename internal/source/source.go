// Package source defines where captured frames come from.
package source

import "firestige.xyz/flowstat/internal/core"

// Source yields captured frames in capture order.
//
// Next returns io.EOF once the source is exhausted. Any other error is
// terminal for the run.
type Source interface {
	Next() (core.RawPacket, error)
	Close() error
}
