package versioned

import "context"

// Suppression is scoped through the context rather than a shared toggle, so
// concurrent saves on the same type cannot clear each other's state and
// restoration after a failure is inherent in context scoping.

type suppressKey int

const (
	versioningSuppressedKey suppressKey = iota
	lockingSuppressedKey
)

// WithoutVersioning returns a context whose saves skip the snapshot hooks.
func WithoutVersioning(ctx context.Context) context.Context {
	return context.WithValue(ctx, versioningSuppressedKey, true)
}

// VersioningSuppressed reports whether snapshot hooks are disabled in ctx.
func VersioningSuppressed(ctx context.Context) bool {
	suppressed, _ := ctx.Value(versioningSuppressedKey).(bool)
	return suppressed
}

// WithoutLocking returns a context whose saves skip optimistic-lock
// enforcement.
func WithoutLocking(ctx context.Context) context.Context {
	return context.WithValue(ctx, lockingSuppressedKey, true)
}

// LockingSuppressed reports whether optimistic locking is disabled in ctx.
func LockingSuppressed(ctx context.Context) bool {
	suppressed, _ := ctx.Value(lockingSuppressedKey).(bool)
	return suppressed
}

// WithoutVersioningDo runs fn with versioning suppressed. The suppression
// ends with the derived context no matter how fn exits.
func WithoutVersioningDo(ctx context.Context, fn func(context.Context) error) error {
	return fn(WithoutVersioning(ctx))
}

// WithoutLockingDo runs fn with optimistic locking suppressed.
func WithoutLockingDo(ctx context.Context, fn func(context.Context) error) error {
	return fn(WithoutLocking(ctx))
}
