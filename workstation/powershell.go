package workstation

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// secretEnv carries a password into a PowerShell child process.
const secretEnv = "COMPUTER_SETUP_SECRET"

// administratorsSID is the well-known SID of the local Administrators group;
// the group name itself is localized.
const administratorsSID = "S-1-5-32-544"

// CommandRunner runs an external program and returns its combined output.
// env entries are appended to the current environment.
type CommandRunner interface {
	Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	return cmd.CombinedOutput()
}

// PowerShell runs scripts through powershell.exe.
type PowerShell struct {
	runner CommandRunner
}

func NewPowerShell(runner CommandRunner) *PowerShell {
	return &PowerShell{runner: runner}
}

// Run executes the script lines joined by "; ". secret, when non-empty, is
// exposed to the script as $env:COMPUTER_SETUP_SECRET.
func (p *PowerShell) Run(ctx context.Context, secret string, lines ...string) (string, error) {
	var env []string
	if secret != "" {
		env = []string{secretEnv + "=" + secret}
	}
	out, err := p.runner.Run(ctx, env, "powershell.exe", powerShellArgs(lines)...)
	output := strings.TrimSpace(string(out))
	if err != nil {
		if output != "" {
			return output, fmt.Errorf("%w: %s", err, output)
		}
		return output, err
	}
	return output, nil
}

func powerShellArgs(lines []string) []string {
	return []string{
		"-NoProfile",
		"-NonInteractive",
		"-ExecutionPolicy", "Bypass",
		"-Command", strings.Join(lines, "; "),
	}
}

// psQuote renders s as a single-quoted PowerShell literal.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func renameComputerScript(hostname string) []string {
	return []string{
		"$ErrorActionPreference = 'Stop'",
		"Rename-Computer -NewName " + psQuote(hostname) + " -Force",
	}
}

// ensureLocalAdminScript creates the account or resets its password, then
// makes sure it is in the Administrators group. The password comes from
// secretEnv.
func ensureLocalAdminScript(username string) []string {
	name := psQuote(username)
	return []string{
		"$ErrorActionPreference = 'Stop'",
		"$password = ConvertTo-SecureString $env:" + secretEnv + " -AsPlainText -Force",
		"$user = Get-LocalUser -Name " + name + " -ErrorAction SilentlyContinue",
		"if ($user) { Set-LocalUser -Name " + name + " -Password $password -PasswordNeverExpires $true; Enable-LocalUser -Name " + name + " } " +
			"else { New-LocalUser -Name " + name + " -Password $password -PasswordNeverExpires -AccountNeverExpires | Out-Null }",
		"if (-not (Get-LocalGroupMember -SID '" + administratorsSID + "' -Member " + name + " -ErrorAction SilentlyContinue)) " +
			"{ Add-LocalGroupMember -SID '" + administratorsSID + "' -Member " + name + " }",
	}
}

func removeLocalUserScript(username string) []string {
	name := psQuote(username)
	return []string{
		"$ErrorActionPreference = 'Stop'",
		"if (Get-LocalUser -Name " + name + " -ErrorAction SilentlyContinue) { Remove-LocalUser -Name " + name + " }",
	}
}

// joinDomainScript joins the domain with the credential password taken from
// secretEnv.
func joinDomainScript(domain, username, ouPath string) []string {
	add := "Add-Computer -DomainName " + psQuote(domain) + " -Credential $credential"
	if ouPath != "" {
		add += " -OUPath " + psQuote(ouPath)
	}
	add += " -Force"
	return []string{
		"$ErrorActionPreference = 'Stop'",
		"$password = ConvertTo-SecureString $env:" + secretEnv + " -AsPlainText -Force",
		"$credential = New-Object System.Management.Automation.PSCredential(" + psQuote(username) + ", $password)",
		add,
	}
}

func joinedDomainScript() []string {
	return []string{
		"$ErrorActionPreference = 'Stop'",
		"$cs = Get-CimInstance -ClassName Win32_ComputerSystem",
		"if ($cs.PartOfDomain) { $cs.Domain }",
	}
}

func logoffCommand() (string, []string) {
	return "shutdown.exe", []string{"/l"}
}

func restartCommand(delay time.Duration) (string, []string) {
	seconds := int(delay / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	return "shutdown.exe", []string{"/r", "/t", strconv.Itoa(seconds)}
}
