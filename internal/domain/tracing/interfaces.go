package tracing

import "context"

// Transaction is a unit of traced work that isn't tied to an incoming request
type Transaction interface {
	// Context returns a fresh context carrying the transaction; it is not derived from any caller's
	Context() context.Context
	End()
}

type Tracer interface {
	BackgroundTx(name string) Transaction
}
