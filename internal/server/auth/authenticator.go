package auth

import "fmt"

// Identity is a resolved request credential.
type Identity struct {
	UserID string
	Roles  []string
}

// Authenticator resolves a bearer credential to an identity. Downstream
// services trust the resolution unconditionally.
type Authenticator interface {
	Authenticate(credential string) (*Identity, error)
}

// JWTAuthenticator verifies HS256 access tokens against a shared secret.
type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret []byte) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret}
}

func (a *JWTAuthenticator) Authenticate(credential string) (*Identity, error) {
	userID, err := GetUserIDFromToken(credential, a.secret)
	if err != nil {
		return nil, fmt.Errorf("token verification: %w", err)
	}
	return &Identity{UserID: userID}, nil
}
