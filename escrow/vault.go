package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// VaultEscrow writes records as KV v2 secrets at
// <mount>/data/<path>/<hostname>.
type VaultEscrow struct {
	client    *vault.Client
	mountPath string
	dataPath  string
	log       *slog.Logger
}

// NewVaultEscrow creates a Vault escrow. An empty token falls back to the
// VAULT_TOKEN environment variable.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount (e.g. "secret")
//   - dataPath: path within the mount (e.g. "workstations")
//   - token: Vault token
//   - log: structured logger
func NewVaultEscrow(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultEscrow, error) {
	if log == nil {
		log = common.DiscardLogger()
	}
	config := vault.DefaultConfig()
	if config.Error != nil {
		return nil, fmt.Errorf("failed to read Vault environment: %w", config.Error)
	}
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := vault.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}
	if client.Token() == "" {
		return nil, fmt.Errorf("%w: vault escrow requires VAULT_TOKEN", interfaces.ErrInvalidConfig)
	}

	mountPath = strings.Trim(mountPath, "/")
	if mountPath == "" {
		return nil, fmt.Errorf("%w: vault escrow requires a mount path", interfaces.ErrInvalidConfig)
	}

	return &VaultEscrow{
		client:    client,
		mountPath: mountPath,
		dataPath:  strings.Trim(dataPath, "/"),
		log:       log,
	}, nil
}

func (e *VaultEscrow) Deposit(ctx context.Context, record interfaces.EscrowRecord) error {
	start := time.Now()
	if err := validateHostname(record.Hostname); err != nil {
		return err
	}

	secretPath := e.secretPath(record.Hostname)
	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"hostname":   record.Hostname,
			"domain":     record.Domain,
			"username":   record.Username,
			"password":   record.Password,
			"sequence":   record.Sequence,
			"created_at": record.CreatedAt.UTC().Format(time.RFC3339),
		},
	}

	if _, err := e.client.Logical().WriteWithContext(ctx, secretPath, secretData); err != nil {
		e.log.Error("Failed to write escrow secret to Vault",
			slog.String("path", secretPath),
			"err", err)
		return fmt.Errorf("failed to write escrow secret to Vault: %w", err)
	}

	e.log.Debug("Deposited credential in Vault",
		slog.String("path", secretPath),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (e *VaultEscrow) Name() string {
	return fmt.Sprintf("vault-%s-%s", e.mountPath, e.dataPath)
}

func (e *VaultEscrow) secretPath(hostname string) string {
	if e.dataPath == "" {
		return fmt.Sprintf("%s/data/%s", e.mountPath, hostname)
	}
	return fmt.Sprintf("%s/data/%s/%s", e.mountPath, e.dataPath, hostname)
}
