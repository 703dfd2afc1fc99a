// Package lifecycle holds shared constants for process start/stop hooks.
package lifecycle

import "time"

// DefaultTimeout bounds startup pings and graceful shutdowns.
const DefaultTimeout = 10 * time.Second
