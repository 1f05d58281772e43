// Package pg implementa los repositorios sobre PostgreSQL usando
// database/sql con el driver stdlib de pgx.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dropDatabas3/accesscore/internal/domain/repository"
)

// Códigos SQLSTATE que se traducen a errores de dominio.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Config ajusta el pool de conexiones.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

// Open abre el pool. No hace ping: el arranque no falla si la base todavía
// no responde; Ping lo usa el readiness.
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("pg: empty dsn")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: open: %w", err)
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 20
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = cfg.MaxOpenConns / 2
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 15 * time.Minute
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New envuelve un *sql.DB existente (tests con sqlmock, pools compartidos).
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB expone el pool para migraciones.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users() repository.UserRepository                 { return userRepo{s} }
func (s *Store) Roles() repository.RoleRepository                 { return roleRepo{s} }
func (s *Store) Permissions() repository.PermissionRepository     { return permRepo{s} }
func (s *Store) Assignments() repository.AssignmentRepository     { return assignRepo{s} }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository { return refreshRepo{s} }
func (s *Store) RevokedTokens() repository.RevokedTokenRepository { return revokedRepo{s} }
func (s *Store) Audit() repository.AuditRepository                { return auditRepo{s} }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// withTx ejecuta fn en una transacción; rollback ante cualquier error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pg: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pg: commit: %w", mapErr(err))
	}
	return nil
}

// mapErr traduce errores del driver a los errores del repositorio.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return repository.Conflict(pgErr.ConstraintName)
		case codeForeignKeyViolation:
			return repository.ErrNotFound
		}
	}
	return err
}

func newID() string { return uuid.NewString() }

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
