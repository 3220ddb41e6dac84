package domain

import "context"

// CredentialStore persists credential material under keys namespaced to
// the auth provider. The session store is its only writer.
type CredentialStore interface {
	// Load returns the persisted credential, or (nil, nil) if absent.
	Load(ctx context.Context) (*Credential, error)
	// Save replaces the persisted credential.
	Save(ctx context.Context, cred *Credential) error
	// Clear removes the persisted credential.
	Clear(ctx context.Context) error
	// Wipe removes every key in the auth namespace. Used on forced
	// termination; must be best-effort and idempotent.
	Wipe(ctx context.Context) error
}
