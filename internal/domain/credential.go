package domain

import "time"

// Credential is the backend-issued bearer token plus its absolute expiry
// and the refresh handle used to renew it. It is owned by the session
// store and only ever persisted through a CredentialStore.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is already past its expiry.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// ExpiringWithin reports whether the access token expires within the
// given lookahead window (including already-expired tokens).
func (c *Credential) ExpiringWithin(now time.Time, window time.Duration) bool {
	return !c.ExpiresAt.After(now.Add(window))
}

// SessionState is the derived state of the session store.
type SessionState string

const (
	// StateAbsent means no credential was ever obtained, or it was
	// explicitly cleared.
	StateAbsent SessionState = "absent"
	// StateValid means a credential is present and comfortably away
	// from expiry.
	StateValid SessionState = "valid"
	// StateExpiring means a credential is present but inside the
	// renewal lookahead window (or already past expiry).
	StateExpiring SessionState = "expiring"
	// StateInvalid means the last renewal attempt failed and the
	// credential was discarded.
	StateInvalid SessionState = "invalid"
)

// SessionStatus is a recomputed-on-demand view of the session store.
// It is never persisted.
type SessionStatus struct {
	State         SessionState `json:"state"`
	HasCredential bool         `json:"has_credential"`
	IsValid       bool         `json:"is_valid"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
}
