// Package main (cmd/computer-setup) is the operator CLI that provisions a
// Windows workstation in two phases.
//
// initial-run reserves the next hostname for a domain in the shared name
// registry, renames the machine, creates the permanent local administrator,
// stores the credentials for the reboot and logs off. Windows runs
// post-login at the next logon through a RunOnce entry: it removes the build
// user, joins the domain, marks the registry row Joined and restarts.
//
// Example usage:
//
//	computer-setup --config C:\ProgramData\ComputerSetup\config.json \
//	    initial-run --domain nycoa --assigned-user "John Doe"
//
//	computer-setup status
//
// --dry-run rehearses both phases in a temporary directory against an
// in-memory registry and a recording workstation, changing nothing.
package main
