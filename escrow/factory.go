package escrow

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// Factory creates escrow targets from URIs.
type Factory struct {
	recipients []string
	log        *slog.Logger
}

// NewFactory creates a factory. recipients are the age public keys file and
// s3 targets seal to.
func NewFactory(recipients []string, log *slog.Logger) *Factory {
	if log == nil {
		log = common.DiscardLogger()
	}
	return &Factory{recipients: recipients, log: log}
}

// EscrowFor creates the target for a single URI.
//
// Supported schemes:
//   - file:///absolute/dir, file://./relative/dir
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=eu-west-1&endpoint=https://minio:9000&path_style=true
//   - vault://host:port/mount/path?tls=false
func (f *Factory) EscrowFor(uri string) (interfaces.CredentialEscrow, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: escrow URI %q: %v", interfaces.ErrInvalidConfig, uri, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return f.createFileEscrow(u)
	case "s3":
		return f.createS3Escrow(u)
	case "vault":
		return f.createVaultEscrow(u)
	default:
		return nil, fmt.Errorf("%w: unsupported escrow scheme %q", interfaces.ErrInvalidConfig, u.Scheme)
	}
}

// CreateMulti creates a MultiEscrow over every URI. Any invalid URI fails the
// whole set, since a silently dropped target would lose credentials.
func (f *Factory) CreateMulti(uris []string) (*MultiEscrow, error) {
	targets := make([]interfaces.CredentialEscrow, 0, len(uris))
	for _, uri := range uris {
		target, err := f.EscrowFor(uri)
		if err != nil {
			return nil, err
		}
		f.log.Debug("Configured escrow target", slog.String("target", target.Name()))
		targets = append(targets, target)
	}
	return NewMultiEscrow(targets, f.log), nil
}

func (f *Factory) createFileEscrow(u *url.URL) (interfaces.CredentialEscrow, error) {
	path := u.Path
	if u.Host != "" {
		// file://C:/escrow or file://./relative
		if len(u.Host) == 2 && u.Host[1] == ':' {
			path = u.Host + path
		} else {
			path = u.Host + "/" + strings.TrimPrefix(path, "/")
		}
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidConfig, u.String())
	}
	return NewFileEscrow(path, f.recipients, f.log)
}

func (f *Factory) createS3Escrow(u *url.URL) (interfaces.CredentialEscrow, error) {
	query := u.Query()
	opts := S3Options{
		Bucket:         u.Host,
		Prefix:         strings.TrimPrefix(u.Path, "/"),
		Region:         query.Get("region"),
		Endpoint:       query.Get("endpoint"),
		ForcePathStyle: query.Get("path_style") == "true",
	}
	if u.User != nil {
		opts.AccessKey = u.User.Username()
		opts.SecretKey, _ = u.User.Password()
	}
	return NewS3Escrow(opts, f.recipients, f.log)
}

func (f *Factory) createVaultEscrow(u *url.URL) (interfaces.CredentialEscrow, error) {
	scheme := "https"
	if u.Query().Get("tls") == "false" {
		scheme = "http"
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: vault URI %s has no host", interfaces.ErrInvalidConfig, u.String())
	}

	mount, dataPath, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	return NewVaultEscrow(scheme+"://"+u.Host, mount, dataPath, "", f.log)
}
