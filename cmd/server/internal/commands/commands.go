package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	postgresstore "github.com/wolfeidau/orgmembers/internal/store/postgres"
)

type Globals struct {
	Dev     bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

type PostgresStoreFlags struct {
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`
	StartupTimeout  time.Duration `help:"how long to wait for the database on startup" default:"30s"`

	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"ORGMEMBERS_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (s *PostgresStoreFlags) open(ctx context.Context, migrate bool) (*pgxpool.Pool, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	return postgresstore.Open(ctx, &postgresstore.Config{
		ConnString:      s.ConnString,
		MaxConns:        s.MaxConns,
		MinConns:        s.MinConns,
		MaxConnLifetime: s.MaxConnLifetime,
		MaxConnIdleTime: s.MaxConnIdleTime,
		StartupTimeout:  s.StartupTimeout,
		AutoMigrate:     migrate,
	})
}

type RedisFlags struct {
	URL           string        `help:"Redis URL" default:"redis://localhost:6379/0" env:"REDIS_URL"`
	ChannelPrefix string        `help:"prefix for event channels" default:"orgmembers:events:"`
	LockPrefix    string        `help:"prefix for lock keys" default:"orgmembers:lock:"`
	LockTTL       time.Duration `help:"lock expiry, bounds how long a crashed holder blocks others" default:"30s"`
	LockWait      time.Duration `help:"how long to wait for a held lock" default:"5s"`
}

func (r *RedisFlags) client(ctx context.Context) (*redis.Client, error) {
	opt, err := redis.ParseURL(r.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

type AuthFlags struct {
	PublicKey     string        `help:"PEM encoded ECDSA public key used to verify bearer tokens" env:"ORGMEMBERS_JWT_PUBLIC_KEY"`
	PublicKeyFile string        `help:"path to the PEM encoded public key" type:"path" env:"ORGMEMBERS_JWT_PUBLIC_KEY_FILE"`
	Issuer        string        `help:"required token issuer, empty disables the check" env:"ORGMEMBERS_JWT_ISSUER"`
	Audience      string        `help:"required token audience, empty disables the check" env:"ORGMEMBERS_JWT_AUDIENCE"`
	Leeway        time.Duration `help:"clock skew allowed when validating tokens" default:"30s"`

	// Development only
	NoAuth   bool   `help:"disable authentication and act as a fixed identity (development only)" default:"false" env:"ORGMEMBERS_NO_AUTH"`
	DevUser  string `help:"user id used when authentication is disabled" default:"0192b3a4-0000-7000-8000-000000000001"`
	DevEmail string `help:"email used when authentication is disabled" default:"dev@example.com"`
}

// publicKeyPEM returns the inline key, or reads it from the key file.
func (a *AuthFlags) publicKeyPEM() (string, error) {
	if a.PublicKey != "" {
		return a.PublicKey, nil
	}
	if a.PublicKeyFile == "" {
		return "", errors.New("a JWT public key is required (--auth-public-key or --auth-public-key-file), or use --auth-no-auth")
	}

	data, err := os.ReadFile(a.PublicKeyFile)
	if err != nil {
		return "", fmt.Errorf("failed to read JWT public key: %w", err)
	}
	return string(data), nil
}

func (a *AuthFlags) devUserID() (uuid.UUID, error) {
	id, err := uuid.Parse(a.DevUser)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid dev user id: %w", err)
	}
	return id, nil
}
