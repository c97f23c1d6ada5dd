package dcontext

import "context"

// DetachedContext returns a context that keeps ctx's values (logger
// included) but drops its cancellation and deadline. The installer
// uses it for writes that should outlive a canceled run, such as
// recording metadata for content already committed to the store.
func DetachedContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
