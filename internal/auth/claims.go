package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the only supported JWT claims shape for this service.
// Multi-tenant invariant: WorkspaceID must be present; every call read and
// every call origination is scoped to the workspace in the token.
type Claims struct {
	jwt.RegisteredClaims

	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
}
