// Package config loads the provisioning configuration: the domain map, the
// registry backend selection and the optional credential escrow targets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ruteri/workstation-provisioning/interfaces"
)

// DefaultWorksheet is the registry tab used when a domain does not name one.
const DefaultWorksheet = "Devices"

// EnvPrefix prefixes environment overrides, e.g. COMPUTER_SETUP_REGISTRY_BACKEND.
const EnvPrefix = "COMPUTER_SETUP"

const keyDelimiter = "::"

// Registry backends.
const (
	BackendSheets   = "sheets"
	BackendPostgres = "postgres"
	BackendHTTP     = "http"
)

type RegistryConfig struct {
	Backend     string `mapstructure:"backend"`
	DatabaseURL string `mapstructure:"database_url"`
	Schema      string `mapstructure:"schema"`
	ServerAddr  string `mapstructure:"server_addr"`
}

type domainEntry struct {
	SheetID          string `mapstructure:"sheet_id"`
	Worksheet        string `mapstructure:"worksheet"`
	HostnameTemplate string `mapstructure:"hostname_template"`
	OUPath           string `mapstructure:"ou_path"`
	DNSServer        string `mapstructure:"dns_server"`
}

type fileConfig struct {
	GoogleCredentials string                 `mapstructure:"google_credentials"`
	Registry          RegistryConfig         `mapstructure:"registry"`
	Escrow            []string               `mapstructure:"escrow"`
	EscrowRecipients  []string               `mapstructure:"escrow_recipients"`
	Domains           map[string]domainEntry `mapstructure:"domains"`
}

// AppConfig is the validated configuration.
type AppConfig struct {
	// Path is the absolute path the configuration was loaded from.
	Path string

	GoogleCredentials string
	Registry          RegistryConfig
	Escrow            []string
	EscrowRecipients  []string

	domains map[string]interfaces.DomainConfig
}

// Load reads the configuration file at path (JSON or YAML, by extension).
// A .env file next to the working directory is loaded first so environment
// overrides can live there.
func Load(path string) (*AppConfig, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: configuration file path is required", interfaces.ErrInvalidConfig)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving configuration path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("configuration file not found: %s: %w", abs, err)
	}

	_ = godotenv.Load()

	// Domain keys are DNS names, so the default "." key delimiter would split
	// them into nested maps.
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigFile(abs)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()
	v.SetDefault("registry"+keyDelimiter+"backend", BackendSheets)
	v.SetDefault("registry"+keyDelimiter+"schema", "public")
	for _, key := range []string{
		"google_credentials",
		"registry" + keyDelimiter + "backend",
		"registry" + keyDelimiter + "database_url",
		"registry" + keyDelimiter + "server_addr",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading configuration %s: %w", abs, err)
	}

	var raw fileConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidConfig, err)
	}

	cfg, err := fromFile(raw)
	if err != nil {
		return nil, err
	}
	cfg.Path = abs
	return cfg, nil
}

func fromFile(raw fileConfig) (*AppConfig, error) {
	if len(raw.Domains) == 0 {
		return nil, fmt.Errorf("%w: configuration file must define at least one domain entry", interfaces.ErrInvalidConfig)
	}

	cfg := &AppConfig{
		GoogleCredentials: raw.GoogleCredentials,
		Registry:          raw.Registry,
		Escrow:            raw.Escrow,
		EscrowRecipients:  raw.EscrowRecipients,
		domains:           make(map[string]interfaces.DomainConfig, len(raw.Domains)),
	}
	cfg.Registry.Backend = strings.ToLower(cfg.Registry.Backend)

	for name, entry := range raw.Domains {
		domain := interfaces.DomainConfig{
			Name:             name,
			RegistryID:       entry.SheetID,
			Worksheet:        entry.Worksheet,
			HostnameTemplate: entry.HostnameTemplate,
			OUPath:           entry.OUPath,
			DNSServer:        entry.DNSServer,
		}
		if domain.Worksheet == "" {
			domain.Worksheet = DefaultWorksheet
		}
		if domain.HostnameTemplate == "" {
			domain.HostnameTemplate = DefaultHostnameTemplate
		}
		if _, err := ParseHostnameTemplate(domain.HostnameTemplate); err != nil {
			return nil, fmt.Errorf("domain %q: %w", name, err)
		}
		if cfg.Registry.Backend == BackendSheets && domain.RegistryID == "" {
			return nil, fmt.Errorf("%w: domain %q is missing sheet_id", interfaces.ErrInvalidConfig, name)
		}
		cfg.domains[domain.Key()] = domain
	}

	switch cfg.Registry.Backend {
	case BackendSheets:
	case BackendPostgres:
		if cfg.Registry.DatabaseURL == "" {
			return nil, fmt.Errorf("%w: registry.database_url is required for the postgres backend", interfaces.ErrInvalidConfig)
		}
	case BackendHTTP:
		if cfg.Registry.ServerAddr == "" {
			return nil, fmt.Errorf("%w: registry.server_addr is required for the http backend", interfaces.ErrInvalidConfig)
		}
	default:
		return nil, fmt.Errorf("%w: unknown registry backend %q", interfaces.ErrInvalidConfig, cfg.Registry.Backend)
	}

	return cfg, nil
}

// Domain looks up a domain case-insensitively.
func (c *AppConfig) Domain(name string) (interfaces.DomainConfig, error) {
	domain, ok := c.domains[strings.ToLower(name)]
	if !ok {
		return interfaces.DomainConfig{}, fmt.Errorf("%w: %q", interfaces.ErrUnknownDomain, name)
	}
	return domain, nil
}

// Domains returns the configured domain names, sorted.
func (c *AppConfig) Domains() []string {
	names := make([]string, 0, len(c.domains))
	for key := range c.domains {
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}

// ResolveCredentialsPath prefers the flag value over the configuration file.
func (c *AppConfig) ResolveCredentialsPath(flagValue string) (string, error) {
	path := flagValue
	if path == "" {
		path = c.GoogleCredentials
	}
	if path == "" {
		return "", errors.New("google credentials path must be supplied via --google-credentials or the configuration file")
	}
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("google credentials file not found: %s", abs)
	}
	return abs, nil
}

// New builds an AppConfig from domain entries directly. Used by tests and by
// the registry server when it is configured without a file.
func New(registry RegistryConfig, domains ...interfaces.DomainConfig) (*AppConfig, error) {
	raw := fileConfig{Registry: registry, Domains: map[string]domainEntry{}}
	if raw.Registry.Backend == "" {
		raw.Registry.Backend = BackendSheets
	}
	for _, d := range domains {
		raw.Domains[d.Name] = domainEntry{
			SheetID:          d.RegistryID,
			Worksheet:        d.Worksheet,
			HostnameTemplate: d.HostnameTemplate,
			OUPath:           d.OUPath,
			DNSServer:        d.DNSServer,
		}
	}
	return fromFile(raw)
}
