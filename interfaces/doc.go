// Package interfaces defines the core types and interfaces of the workstation
// provisioning system, separating contracts from their implementations.
//
// # Provisioning Types
//
// ProvisioningState is the persisted record that bridges the reboot between
// the initial-run and post-login phases. Phase is its forward-only lifecycle:
//
//	Pending -> Renamed -> AwaitingLogon -> Joined
//
// RegistryRow is one row of the shared name registry (a spreadsheet tab or a
// database table). Reservation is what a successful name reservation returns.
//
// # Component Interfaces
//
//   - NameRegistry: reserves per-domain sequence numbers and marks rows joined
//   - SecretStore: machine-scoped encrypted storage for the credential blob
//   - StateStore: persistence of the ProvisioningState record
//   - Workstation: the local operating system operations (rename, accounts,
//     autologon, continuation, domain join)
//   - CredentialEscrow: optional deposit of the generated local admin password
//
// # Errors
//
// Sentinel errors are grouped by the error taxonomy of the system:
// configuration errors, registry errors, local system errors and resumption
// errors. Callers use errors.Is to classify failures.
package interfaces
