// Package storage provides the credential persistence backends: an
// in-memory store for single-process deployments and tests, and a
// Redis-backed store with at-rest encryption for shared deployments.
package storage
