// Package domain holds the core types and interfaces of the session
// lifecycle subsystem: the credential model, the session state machine,
// the auth backend contract, and the error taxonomy. It has no
// dependencies on the adapter packages.
package domain
