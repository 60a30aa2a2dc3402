package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/starter-billing/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID               string
	ActiveOrganizationID string
	Role                 enums.MemberRole
	JTI                  string
}

// AccessTokenClaims represents the typed JWT issued by the identity provider.
type AccessTokenClaims struct {
	UserID               string           `json:"user_id"`
	ActiveOrganizationID string           `json:"active_organization_id,omitempty"`
	Role                 enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the caller resolved from a verified session token.
type Identity struct {
	UserID         string
	OrganizationID string
	Role           enums.MemberRole
}

// HasOrganization reports whether the session has an active organization selected.
func (i *Identity) HasOrganization() bool {
	return i != nil && i.OrganizationID != ""
}
