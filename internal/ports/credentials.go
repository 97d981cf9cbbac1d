package ports

import (
	"context"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
)

// CredentialLeaser fetches the bastion-held private key into a unique local
// file. The returned lease is never nil, even alongside an error, so callers
// can always defer lease.Release() to remove partially written files.
type CredentialLeaser interface {
	Acquire(ctx context.Context) (*remotecall.CredentialLease, error)
}

// RequestPolicy decides whether a normalised request may proceed. A denial
// is reported as a *remotecall.DomainError with ErrCodePolicyDenied.
type RequestPolicy interface {
	Allow(ctx context.Context, req remotecall.Request) error
}
