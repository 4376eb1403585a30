package security

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	vault "github.com/hashicorp/vault/api"
)

// KeySource provides the encryption secret for the payload envelope. The
// secret is fetched once at startup; sources do not watch for rotation.
type KeySource interface {
	Secret(ctx context.Context) ([]byte, error)
}

// StaticKeySource holds a hex-encoded secret supplied through configuration.
type StaticKeySource struct {
	secretHex string
}

// NewStaticKeySource creates a key source from a hex-encoded secret string.
func NewStaticKeySource(secretHex string) *StaticKeySource {
	return &StaticKeySource{secretHex: secretHex}
}

// Secret decodes and returns the configured secret.
func (s *StaticKeySource) Secret(ctx context.Context) ([]byte, error) {
	secret, err := hex.DecodeString(s.secretHex)
	if err != nil {
		return nil, fmt.Errorf("invalid hex encryption secret: %w", err)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("empty encryption secret")
	}
	return secret, nil
}

// VaultKeySource reads the encryption secret from a field of a Vault KV v2
// secret.
type VaultKeySource struct {
	client *vault.Client
	mount  string
	path   string
	field  string
	log    *slog.Logger
}

// NewVaultKeySource creates a key source reading from the given Vault server.
// The token is taken from the standard VAULT_TOKEN environment variable when
// empty.
func NewVaultKeySource(address, token, mount, path, field string, log *slog.Logger) (*VaultKeySource, error) {
	config := vault.DefaultConfig()
	config.Address = address

	client, err := vault.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	return &VaultKeySource{
		client: client,
		mount:  mount,
		path:   path,
		field:  field,
		log:    log,
	}, nil
}

// Secret fetches and decodes the hex-encoded secret field.
func (s *VaultKeySource) Secret(ctx context.Context) ([]byte, error) {
	kv, err := s.client.KVv2(s.mount).Get(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault secret %s/%s: %w", s.mount, s.path, err)
	}

	raw, ok := kv.Data[s.field]
	if !ok {
		return nil, fmt.Errorf("vault secret %s/%s has no field %q", s.mount, s.path, s.field)
	}
	hexValue, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("vault secret field %q is not a string", s.field)
	}

	secret, err := hex.DecodeString(hexValue)
	if err != nil {
		return nil, fmt.Errorf("vault secret field %q is not valid hex: %w", s.field, err)
	}

	s.log.Debug("Loaded encryption secret from vault",
		slog.String("mount", s.mount),
		slog.String("path", s.path))
	return secret, nil
}
