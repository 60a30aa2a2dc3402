package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkjwt "github.com/clerk/clerk-sdk-go/v2/jwt"

	"github.com/angelmondragon/starter-billing/pkg/config"
	"github.com/angelmondragon/starter-billing/pkg/enums"
)

// Verifier resolves a bearer token into the caller's identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// NewVerifier selects the verifier matching the configured identity provider.
func NewVerifier(jwtCfg config.JWTConfig, clerkCfg config.ClerkConfig) (Verifier, error) {
	switch strings.ToLower(strings.TrimSpace(jwtCfg.Provider)) {
	case "", config.AuthProviderJWT:
		return NewHMACVerifier(jwtCfg)
	case config.AuthProviderClerk:
		return NewClerkVerifier(clerkCfg)
	default:
		return nil, fmt.Errorf("unsupported auth provider %q", jwtCfg.Provider)
	}
}

// HMACVerifier validates HS256 tokens signed with a secret shared with the identity provider.
type HMACVerifier struct {
	cfg config.JWTConfig
}

func NewHMACVerifier(cfg config.JWTConfig) (*HMACVerifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &HMACVerifier{cfg: cfg}, nil
}

func (v *HMACVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	claims, err := ParseAccessToken(v.cfg, token)
	if err != nil {
		return nil, err
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, errors.New("token has no subject")
	}
	role := claims.Role
	if role == "" {
		role = enums.MemberRoleMember
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid member role %q", role)
	}
	return &Identity{
		UserID:         userID,
		OrganizationID: claims.ActiveOrganizationID,
		Role:           role,
	}, nil
}

type clerkVerifyFunc func(ctx context.Context, params *clerkjwt.VerifyParams) (*clerk.SessionClaims, error)

// ClerkVerifier validates Clerk session tokens and reads the active organization claims.
type ClerkVerifier struct {
	verify clerkVerifyFunc
}

func NewClerkVerifier(cfg config.ClerkConfig) (*ClerkVerifier, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("clerk secret key is required")
	}
	clerk.SetKey(cfg.SecretKey)
	return &ClerkVerifier{verify: clerkjwt.Verify}, nil
}

func (v *ClerkVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	claims, err := v.verify(ctx, &clerkjwt.VerifyParams{Token: token})
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &Identity{
		UserID:         claims.Subject,
		OrganizationID: claims.ActiveOrganizationID,
		Role:           roleFromClerk(claims.ActiveOrganizationRole),
	}, nil
}

// roleFromClerk maps Clerk's "org:<role>" keys onto member roles.
func roleFromClerk(raw string) enums.MemberRole {
	role, err := enums.ParseMemberRole(strings.TrimPrefix(strings.ToLower(raw), "org:"))
	if err != nil {
		return enums.MemberRoleMember
	}
	return role
}
