package workstation

// Registry locations under HKEY_LOCAL_MACHINE.
const (
	winlogonKeyPath     = `SOFTWARE\Microsoft\Windows NT\CurrentVersion\Winlogon`
	runOnceKeyPath      = `SOFTWARE\Microsoft\Windows\CurrentVersion\RunOnce`
	computerNameKeyPath = `SYSTEM\CurrentControlSet\Control\ComputerName\ComputerName`
)

// Winlogon values written for automatic logon.
const (
	valueAutoAdminLogon    = "AutoAdminLogon"
	valueForceAutoLogon    = "ForceAutoLogon"
	valueDefaultUserName   = "DefaultUserName"
	valueDefaultPassword   = "DefaultPassword"
	valueDefaultDomainName = "DefaultDomainName"
)

// localLogonDomain makes Winlogon authenticate against the local SAM
// whatever the computer is currently called.
const localLogonDomain = "."
