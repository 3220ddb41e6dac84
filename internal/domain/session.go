package domain

import "context"

// SessionService is the surface the session store exposes to application
// code: validity checks, token access, renewal, and sign-out.
type SessionService interface {
	Status() SessionStatus
	Valid() bool
	// Refresh renews the credential if needed. True means a valid
	// credential is held afterwards. Idempotent when already valid.
	Refresh(ctx context.Context) bool
	// AccessToken refreshes first and returns the token only while the
	// session is valid. Callers must treat (_, false) as "redirect to
	// sign-in", not as a crash.
	AccessToken(ctx context.Context) (string, bool)
	// SignOut revokes the session server-side (best effort) and clears
	// the local credential.
	SignOut(ctx context.Context) error
}
