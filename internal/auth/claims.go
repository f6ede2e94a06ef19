package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the payload carried by an access token.
type Claims struct {
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
	Email     string `json:"email,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller as seen by a downstream handler.
type Identity struct {
	Subject   string `json:"user_id"`
	Role      Role   `json:"role"`
	Email     string `json:"email,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
}

// Identity projects the claims onto the identity handed to handlers.
func (c Claims) Identity() Identity {
	return Identity{
		Subject:   c.UserID,
		Role:      c.Role,
		Email:     c.Email,
		CompanyID: c.CompanyID,
	}
}
