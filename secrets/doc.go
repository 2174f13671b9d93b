// Package secrets implements the machine-scoped secret store that carries
// the provisioning credentials across the reboot between the two phases.
//
// The store holds at most one secret in a single file at a fixed location.
// The payload is encrypted by a Protector bound to the local machine: DPAPI
// with the LOCAL_MACHINE scope on Windows, and an AES-GCM key derived from
// the machine identifier elsewhere. No key material is written to disk, so
// a copied file cannot be opened on another machine.
//
// Get on a missing or deleted ref returns interfaces.ErrSecretNotFound.
// Callers treat that as "nothing to resume", not as corruption.
package secrets
