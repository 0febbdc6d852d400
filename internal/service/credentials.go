package service

import "context"

// CredentialResolver returns the provider credential to use for a caller,
// or "" when none is configured.
type CredentialResolver interface {
	Resolve(ctx context.Context, ownerID string) (string, error)
}

// CredentialStore is implemented by postgresql.CredentialRepository.
type CredentialStore interface {
	Lookup(ctx context.Context, ownerID string) (string, error)
}

type credentialResolver struct {
	store    CredentialStore
	fallback string
}

// NewCredentialResolver prefers the caller's stored credential and falls
// back to the configured default. store may be nil.
func NewCredentialResolver(store CredentialStore, fallback string) CredentialResolver {
	return &credentialResolver{store: store, fallback: fallback}
}

func (r *credentialResolver) Resolve(ctx context.Context, ownerID string) (string, error) {
	if r.store != nil && ownerID != "" {
		cred, err := r.store.Lookup(ctx, ownerID)
		if err != nil {
			return "", err
		}
		if cred != "" {
			return cred, nil
		}
	}
	return r.fallback, nil
}
