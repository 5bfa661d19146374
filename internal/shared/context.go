package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the authenticated actor id in context.
// Authentication itself happens outside the engine; the boundary
// middleware resolves the identity and hands us the id only.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the actor id, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
