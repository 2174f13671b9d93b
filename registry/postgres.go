package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/config"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const uniqueViolation = "23505"

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, dbURL, schema string, log *slog.Logger) error {
	if schema == "" {
		schema = "public"
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}

	// A single connection keeps the search_path for goose.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schema, err)
	}
	if _, err := db.ExecContext(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("failed to set search_path: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations completed", slog.String("schema", schema))
	return nil
}

// NewPool connects a pgx pool whose connections use schema as search_path.
func NewPool(ctx context.Context, dbURL, schema string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	poolConfig.MaxConns = 10

	if schema != "" {
		poolConfig.ConnConfig.RuntimeParams["search_path"] = schema
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

// PostgresRegistry keeps registry rows in a relational table. Uniqueness of
// (domain, sequence) is enforced by a constraint, so a concurrent insert of
// the same sequence fails with interfaces.ErrReservationConflict.
type PostgresRegistry struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgresRegistry(pool *pgxpool.Pool, log *slog.Logger) *PostgresRegistry {
	if log == nil {
		log = common.DiscardLogger()
	}
	return &PostgresRegistry{pool: pool, log: log}
}

func (r *PostgresRegistry) ReserveName(ctx context.Context, domain interfaces.DomainConfig, assignedUser string) (*interfaces.Reservation, error) {
	key := domain.Key()

	var seq int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM registry_rows WHERE domain = $1`, key,
	).Scan(&seq)
	if err != nil {
		return nil, classifyPgError("read max sequence", err)
	}

	hostname, err := config.RenderHostname(domain, seq, assignedUser)
	if err != nil {
		return nil, err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO registry_rows (domain, sequence, hostname, assigned_user, status, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())`,
		key, seq, hostname, assignedUser, string(interfaces.StatusPending))
	if err != nil {
		return nil, classifyPgError("insert row", err)
	}

	r.log.Debug("Reserved sequence",
		slog.String("domain", key),
		slog.Int("sequence", seq),
		slog.String("hostname", hostname))

	return &interfaces.Reservation{
		Domain:       domain.Name,
		Sequence:     seq,
		Hostname:     hostname,
		AssignedUser: assignedUser,
	}, nil
}

func (r *PostgresRegistry) MarkJoined(ctx context.Context, domain interfaces.DomainConfig, sequence int, notes string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE registry_rows SET status = $1, updated_at = now(), notes = $2
		 WHERE domain = $3 AND sequence = $4`,
		string(interfaces.StatusJoined), notes, domain.Key(), sequence)
	if err != nil {
		return classifyPgError("update row", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: domain %s sequence %d", interfaces.ErrRowNotFound, domain.Name, sequence)
	}
	return nil
}

// Rows lists a domain's rows in sequence order.
func (r *PostgresRegistry) Rows(ctx context.Context, domain string) ([]interfaces.RegistryRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT domain, sequence, hostname, assigned_user, status, updated_at, notes
		 FROM registry_rows WHERE domain = $1 ORDER BY sequence`, strings.ToLower(domain))
	if err != nil {
		return nil, classifyPgError("list rows", err)
	}
	defer rows.Close()

	var out []interfaces.RegistryRow
	for rows.Next() {
		var row interfaces.RegistryRow
		var status string
		if err := rows.Scan(&row.Domain, &row.Sequence, &row.Hostname, &row.AssignedUser, &status, &row.Timestamp, &row.Notes); err != nil {
			return nil, err
		}
		row.Status = interfaces.RowStatus(status)
		out = append(out, row)
	}
	return out, rows.Err()
}

func classifyPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == uniqueViolation:
			return fmt.Errorf("%w: %s: %s", interfaces.ErrReservationConflict, op, pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "28") || pgErr.Code == "42501":
			return fmt.Errorf("%w: %s: %s", interfaces.ErrPermissionDenied, op, pgErr.Message)
		default:
			return fmt.Errorf("postgres %s: %w", op, err)
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", interfaces.ErrRegistryUnavailable, op, err)
}
