// Package credentials keeps the ES256 keypairs orgctl signs requests with.
//
// Layout of the store directory:
//
//	config.json   credential metadata and the default name
//	<name>.key    EC private key, 0600
//	<name>.pub    PKIX public key, handed to the server as its verification key
package credentials

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

var (
	ErrCredentialNotFound  = errors.New("credential not found")
	ErrCredentialExists    = errors.New("credential already exists")
	ErrNoDefaultCredential = errors.New("no default credential set")
	ErrInvalidPrivateKey   = errors.New("invalid private key")
	ErrEmailRequired       = errors.New("email is required")
	// ErrInvalidName is returned for names that can't be used as file names.
	ErrInvalidName = errors.New("credential name must match [a-zA-Z0-9][a-zA-Z0-9._-]*")
)

var validName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

const configVersion = 1

// Credential is a signing key bound to the user identity it asserts.
type Credential struct {
	Name        string    `json:"name"`
	Fingerprint string    `json:"fingerprint"`
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Config is the on-disk index of credentials.
type Config struct {
	Version           int                   `json:"version"`
	DefaultCredential string                `json:"default_credential,omitempty"`
	Credentials       map[string]Credential `json:"credentials"`
}

// Store manages credentials in a directory on the local filesystem.
type Store struct {
	baseDir string
}

// NewStore opens the store at baseDir, creating it if needed.
// An empty baseDir means ~/.orgmembers/credentials.
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".orgmembers", "credentials")
	}

	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	s := &Store{baseDir: baseDir}

	if _, err := os.Stat(s.configPath()); errors.Is(err, os.ErrNotExist) {
		if err := s.saveConfig(&Config{Version: configVersion, Credentials: map[string]Credential{}}); err != nil {
			return nil, err
		}
	}

	log.Debug().Str("base_dir", baseDir).Msg("credential store opened")

	return s, nil
}

// keyPair is a freshly generated credential key in its stored encodings.
type keyPair struct {
	privatePEM  []byte
	publicPEM   []byte
	fingerprint string
}

// generateKey creates a P-256 key. The fingerprint is the base58 SHA-256 of
// the public key DER and becomes the kid of every token it signs.
func generateKey() (*keyPair, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	privDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	sum := sha256.Sum256(pubDER)

	return &keyPair{
		privatePEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER}),
		publicPEM:   pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}),
		fingerprint: base58.Encode(sum[:]),
	}, nil
}

// Create generates a keypair and a new user id for email. The first
// credential in a store becomes the default.
func (s *Store) Create(name, email string) (*Credential, error) {
	if !validName.MatchString(name) {
		return nil, ErrInvalidName
	}
	if email == "" {
		return nil, ErrEmailRequired
	}

	kp, err := generateKey()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cred := Credential{
		Name:        name,
		Fingerprint: kp.fingerprint,
		UserID:      uuid.Must(uuid.NewV7()),
		Email:       email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.mutate(func(cfg *Config) error {
		if _, ok := cfg.Credentials[name]; ok {
			return ErrCredentialExists
		}

		if err := s.writeKeys(name, kp); err != nil {
			return err
		}

		cfg.Credentials[name] = cred
		if len(cfg.Credentials) == 1 {
			cfg.DefaultCredential = name
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrCredentialExists) {
			_ = s.removeKeys(name)
		}
		return nil, err
	}

	log.Info().
		Str("name", name).
		Str("fingerprint", kp.fingerprint).
		Str("user_id", cred.UserID.String()).
		Msg("credential created")

	return &cred, nil
}

func (s *Store) writeKeys(name string, kp *keyPair) error {
	if err := os.WriteFile(s.keyPath(name, ".key"), kp.privatePEM, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	// #nosec G306 - the public key is meant to be shared with the server
	if err := os.WriteFile(s.keyPath(name, ".pub"), kp.publicPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}
	return nil
}

// removeKeys deletes both key files, ignoring missing ones.
func (s *Store) removeKeys(name string) error {
	for _, ext := range []string{".key", ".pub"} {
		if err := os.Remove(s.keyPath(name, ext)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s file: %w", ext, err)
		}
	}
	return nil
}

// Get returns the credential called name.
func (s *Store) Get(name string) (*Credential, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	cred, ok := cfg.Credentials[name]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return &cred, nil
}

// GetDefault returns the default credential, or ErrNoDefaultCredential.
func (s *Store) GetDefault() (*Credential, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	if cfg.DefaultCredential == "" {
		return nil, ErrNoDefaultCredential
	}
	return s.Get(cfg.DefaultCredential)
}

// List returns every credential sorted by name.
func (s *Store) List() ([]Credential, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	creds := make([]Credential, 0, len(cfg.Credentials))
	for _, cred := range cfg.Credentials {
		creds = append(creds, cred)
	}
	slices.SortFunc(creds, func(a, b Credential) int {
		return strings.Compare(a.Name, b.Name)
	})

	return creds, nil
}

// Update changes the email asserted by a credential. The user id is kept.
func (s *Store) Update(name, email string) error {
	if email == "" {
		return ErrEmailRequired
	}

	err := s.mutate(func(cfg *Config) error {
		cred, ok := cfg.Credentials[name]
		if !ok {
			return ErrCredentialNotFound
		}
		cred.Email = email
		cred.UpdatedAt = time.Now().UTC()
		cfg.Credentials[name] = cred
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("name", name).Str("email", email).Msg("credential updated")
	return nil
}

// Delete removes a credential and its key files. Deleting the default
// credential leaves no default.
func (s *Store) Delete(name string) error {
	err := s.mutate(func(cfg *Config) error {
		if _, ok := cfg.Credentials[name]; !ok {
			return ErrCredentialNotFound
		}
		if err := s.removeKeys(name); err != nil {
			return err
		}

		delete(cfg.Credentials, name)
		if cfg.DefaultCredential == name {
			cfg.DefaultCredential = ""
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("name", name).Msg("credential deleted")
	return nil
}

// SetDefault makes name the credential used when none is given.
func (s *Store) SetDefault(name string) error {
	err := s.mutate(func(cfg *Config) error {
		if _, ok := cfg.Credentials[name]; !ok {
			return ErrCredentialNotFound
		}
		cfg.DefaultCredential = name
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("name", name).Msg("default credential set")
	return nil
}

// LoadPrivateKey reads the signing key of a credential.
func (s *Store) LoadPrivateKey(name string) (*ecdsa.PrivateKey, error) {
	data, err := s.readKeyFile(name, ".key")
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPrivateKey
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	return key, nil
}

// LoadPublicKeyPEM returns the public key in PEM format, as passed to the
// server's --auth-public-key-file.
func (s *Store) LoadPublicKeyPEM(name string) (string, error) {
	data, err := s.readKeyFile(name, ".pub")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// readKeyFile reads a key file of a credential known to the config.
func (s *Store) readKeyFile(name, ext string) ([]byte, error) {
	if _, err := s.Get(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.keyPath(name, ext))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return data, nil
}

func (s *Store) keyPath(name, ext string) string {
	return filepath.Join(s.baseDir, name+ext)
}

func (s *Store) configPath() string {
	return filepath.Join(s.baseDir, "config.json")
}

// mutate loads the config, applies fn and saves the result. Nothing is
// written when fn fails.
func (s *Store) mutate(fn func(cfg *Config) error) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return s.saveConfig(cfg)
}

func (s *Store) loadConfig() (*Config, error) {
	data, err := os.ReadFile(s.configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version > configVersion {
		return nil, fmt.Errorf("config version %d is newer than supported version %d", cfg.Version, configVersion)
	}
	if cfg.Credentials == nil {
		cfg.Credentials = map[string]Credential{}
	}

	return &cfg, nil
}

// saveConfig replaces the config file through a rename so readers never see
// a partial write.
func (s *Store) saveConfig(cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(s.baseDir, "config-*.json")
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.configPath()); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
