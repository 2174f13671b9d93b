// Package escrow deposits the generated local administrator credential with
// one or more recovery targets before the machine leaves the operator's
// hands.
//
// # Targets
//
// Targets are selected by URI:
//
//   - file:///path/to/dir - writes <dir>/<hostname>.age
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=...&endpoint=...
//   - vault://host:port/mount/path[?tls=false] - KV v2 secret at
//     <mount>/data/<path>/<hostname>, authenticated with VAULT_TOKEN
//
// File and S3 targets only ever see the credential sealed to the configured
// age recipients (ASCII armored). Vault stores the record as secret data and
// relies on its own encryption at rest and ACLs.
//
// # Multiple targets
//
// MultiEscrow deposits into every configured target and fails if any of them
// fails, so an operator never ends up with a credential that only some
// targets hold without noticing.
package escrow
