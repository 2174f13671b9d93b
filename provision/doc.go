// Package provision implements the two-phase workstation provisioning state
// machine.
//
// InitialRun runs under the build account. It reserves a hostname in the
// shared registry, renames the computer, creates the local administrator,
// stores the credentials in the machine-scoped secret store, configures
// automatic logon and a run-once continuation, persists the provisioning
// state and logs the session off.
//
// PostLogin runs as the continuation at the first logon of the local
// administrator. It clears automatic logon, removes the build account, joins
// the domain, marks the registry row Joined and finally deletes the secret
// and the state file. Every step is safe to repeat: a crash at any point
// leaves a state file that a later PostLogin resumes from.
//
// Phases only move forward:
//
//	Pending -> Renamed -> AwaitingLogon -> Joined
//
// Pending exists only in memory. Renamed is persisted once the machine-level
// changes of InitialRun are in place, AwaitingLogon once the continuation is
// scheduled, and Joined once the domain join succeeded.
package provision
