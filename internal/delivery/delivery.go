// Package delivery defines the contract every transport entrypoint
// implements, so main can start them uniformly.
package delivery

import "context"

// Delivery is one serving surface of the process (HTTP today). Serve
// blocks until the server stops; shutdown happens through fx lifecycle
// hooks registered by the implementation.
type Delivery interface {
	Serve(ctx context.Context) error
}
