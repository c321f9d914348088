package interfaces

import "context"

// Connection is anything that can be closed once, asynchronously. Close
// blocks until the underlying resource is released or ctx is done.
type Connection interface {
	Close(ctx context.Context) error
}
