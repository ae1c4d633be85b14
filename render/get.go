package render

import "context"

// Get renders url once in a fresh session and returns the result. The
// browser is launched for this call only and closed before Get returns.
func Get(ctx context.Context, url string, launch LaunchConfig, opts RequestOptions, sessionOpts ...SessionOption) (*Result, error) {
	return NewSession(launch, sessionOpts...).Request(ctx, url, opts)
}
