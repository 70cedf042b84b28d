package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collabnotes/internal/models"
	"collabnotes/internal/utils"

	"go.uber.org/zap"
)

// ErrAuthenticationFailure is returned for any credential that does not
// resolve to an identity.
var ErrAuthenticationFailure = errors.New("authentication failure")

// Principal is a verified token: who it belongs to and how to revoke it.
type Principal struct {
	Identity  models.Identity
	TokenID   string
	ExpiresAt time.Time
}

// TokenVerifier turns a session token into the identity it was issued for.
type TokenVerifier struct {
	Secret      string
	Revocations Revocations
	Logger      *zap.Logger
}

func NewTokenVerifier(secret string, revocations Revocations, logger *zap.Logger) *TokenVerifier {
	if revocations == nil {
		revocations = NoRevocations{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenVerifier{Secret: secret, Revocations: revocations, Logger: logger}
}

// VerifyIdentity validates the credential and returns its identity.
func (v *TokenVerifier) VerifyIdentity(ctx context.Context, credential string) (models.Identity, error) {
	p, err := v.Verify(ctx, credential)
	return p.Identity, err
}

// Verify is VerifyIdentity that also hands back the token id and expiry.
func (v *TokenVerifier) Verify(ctx context.Context, credential string) (Principal, error) {
	if credential == "" {
		return Principal{}, fmt.Errorf("%w: empty credential", ErrAuthenticationFailure)
	}
	claims, err := utils.ParseToken(credential, v.Secret)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrAuthenticationFailure, err)
	}
	userID, err := utils.GetUserIDFromClaims(claims)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrAuthenticationFailure, err)
	}
	username := utils.GetStringClaim(claims, "username")
	if username == "" {
		return Principal{}, fmt.Errorf("%w: missing username claim", ErrAuthenticationFailure)
	}

	jti := utils.GetStringClaim(claims, "jti")
	if jti != "" {
		revoked, err := v.Revocations.IsRevoked(ctx, jti)
		if err != nil {
			// cannot prove the token is still valid
			v.Logger.Warn("revocation lookup failed", zap.String("jti", jti), zap.Error(err))
			return Principal{}, fmt.Errorf("%w: revocation lookup: %v", ErrAuthenticationFailure, err)
		}
		if revoked {
			return Principal{}, fmt.Errorf("%w: token revoked", ErrAuthenticationFailure)
		}
	}

	return Principal{
		Identity:  models.Identity{UserID: userID, Username: username},
		TokenID:   jti,
		ExpiresAt: utils.GetExpiry(claims),
	}, nil
}
