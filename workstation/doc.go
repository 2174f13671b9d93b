// Package workstation performs the local operating system operations of a
// provisioning run: renaming the computer, managing the local administrator
// and the build account, automatic logon, the run-once continuation, domain
// join and session control.
//
// The Windows implementation drives PowerShell for account and domain
// operations and writes the Winlogon and RunOnce registry keys directly.
// Secrets are handed to PowerShell through the child's environment, never on
// its command line.
//
// Recorder implements the same interface without touching the machine. It
// backs --dry-run and the provisioning tests.
//
// DNSLocator finds domain controllers through the _ldap._tcp.dc._msdcs SRV
// records, so a join can be deferred until the domain is actually reachable.
package workstation
