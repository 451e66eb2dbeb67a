package services

import "context"

// persistentContext keeps request values but drops cancellation, so work
// started by a request can outlive it.
func persistentContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
