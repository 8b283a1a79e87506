package postgres

import (
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/jhoicas/stock-ledger/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator aplica las migraciones embebidas en el binario.
type Migrator struct {
	m   *migrate.Migrate
	log *logger.Logger
}

// NewMigrator prepara golang-migrate con la fuente iofs y el driver pgx5.
func NewMigrator(databaseURL string, log *logger.Logger) (*Migrator, error) {
	if log == nil {
		log = logger.Nop()
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("fuente de migraciones: %w", err)
	}
	dbURL, err := pgx5URL(databaseURL)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return nil, fmt.Errorf("crear migrador: %w", err)
	}
	return &Migrator{m: m, log: log}, nil
}

// Up aplica las migraciones pendientes. Sin cambios no es error.
func (g *Migrator) Up() error {
	return g.handle(g.m.Up(), "up")
}

// Down revierte todas las migraciones.
func (g *Migrator) Down() error {
	return g.handle(g.m.Down(), "down")
}

// Version versión actual del esquema.
func (g *Migrator) Version() (uint, bool, error) {
	v, dirty, err := g.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close libera la fuente y la conexión.
func (g *Migrator) Close() error {
	srcErr, dbErr := g.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (g *Migrator) handle(err error, direction string) error {
	if err == nil {
		g.log.Info().Str("direction", direction).Msg("migraciones aplicadas")
		return nil
	}
	if errors.Is(err, migrate.ErrNoChange) {
		g.log.Info().Str("direction", direction).Msg("sin migraciones pendientes")
		return nil
	}
	var dirtyErr migrate.ErrDirty
	if errors.As(err, &dirtyErr) {
		return fmt.Errorf("migración fallida: versión %d marcada como dirty", dirtyErr.Version)
	}
	return fmt.Errorf("migración %s: %w", direction, err)
}

// Migrate atajo: aplica las migraciones pendientes y cierra.
func Migrate(databaseURL string, log *logger.Logger) error {
	g, err := NewMigrator(databaseURL, log)
	if err != nil {
		return err
	}
	defer func() { _ = g.Close() }()
	return g.Up()
}

// pgx5URL cambia el esquema postgres:// por pgx5:// (driver pgx/v5 de golang-migrate).
func pgx5URL(databaseURL string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("DATABASE_URL inválida: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql", "pgx5":
		u.Scheme = "pgx5"
	default:
		return "", fmt.Errorf("esquema de base de datos no soportado: %q", u.Scheme)
	}
	return u.String(), nil
}
