package auth

import "context"

const authContextKey contextKey = "auth_context"

// AuthContext carries authentication metadata for the current request
type AuthContext struct {
	WorkspaceID string
	ActorID     string
	ActorType   string
	AuthMethod  string
	Issuer      string
	Client      string
}

// GetAuthContext retrieves the auth context from context
func GetAuthContext(ctx context.Context) (*AuthContext, bool) {
	authCtx, ok := ctx.Value(authContextKey).(*AuthContext)
	return authCtx, ok
}
