package escrow

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// S3Options configures an S3 or S3-compatible escrow bucket.
type S3Options struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string

	// AccessKey and SecretKey are optional; without them the default AWS
	// credential chain is used.
	AccessKey string
	SecretKey string

	// ForcePathStyle addresses the bucket in the path, as most S3-compatible
	// servers expect.
	ForcePathStyle bool
}

// S3Escrow uploads sealed records as objects <prefix>/<hostname>.age.
type S3Escrow struct {
	client     *s3.S3
	bucket     string
	prefix     string
	recipients []string
	log        *slog.Logger
}

func NewS3Escrow(opts S3Options, recipients []string, log *slog.Logger) (*S3Escrow, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 escrow requires a bucket", interfaces.ErrInvalidConfig)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: s3 escrow requires escrow_recipients", interfaces.ErrInvalidConfig)
	}
	if log == nil {
		log = common.DiscardLogger()
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	cfg := aws.NewConfig().WithRegion(opts.Region)
	if opts.Endpoint != "" {
		cfg = cfg.WithEndpoint(opts.Endpoint)
	}
	if opts.ForcePathStyle {
		cfg = cfg.WithS3ForcePathStyle(true)
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, ""))
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Escrow{
		client:     s3.New(sess),
		bucket:     opts.Bucket,
		prefix:     strings.Trim(opts.Prefix, "/"),
		recipients: recipients,
		log:        log,
	}, nil
}

func (e *S3Escrow) Deposit(ctx context.Context, record interfaces.EscrowRecord) error {
	start := time.Now()
	name, err := objectName(record)
	if err != nil {
		return err
	}
	sealed, err := sealRecord(record, e.recipients)
	if err != nil {
		return err
	}

	key := e.objectKey(name)
	_, err = e.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(sealed),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		e.log.Error("Failed to upload escrow object",
			slog.String("bucket", e.bucket),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return fmt.Errorf("failed to upload escrow object to S3: %w", err)
	}

	e.log.Debug("Deposited credential in S3",
		slog.String("bucket", e.bucket),
		slog.String("key", key),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (e *S3Escrow) Name() string {
	return fmt.Sprintf("s3-%s", e.bucket)
}

func (e *S3Escrow) objectKey(name string) string {
	if e.prefix == "" {
		return name
	}
	return path.Join(e.prefix, name)
}
