package config

import (
	"fmt"

	vault "github.com/hashicorp/vault/api"
)

// secretManager wraps the Vault API client for reading the KV v2 secret this
// run's database/messaging credentials may live in.
type secretManager struct {
	client *vault.Client
}

// newSecretManager creates a Vault client pointed at address, authenticated
// with token (empty means rely on the client's own environment-based auth,
// e.g. VAULT_TOKEN already set for the process).
func newSecretManager(address, token string) (*secretManager, error) {
	cfg := vault.DefaultConfig()
	cfg.Address = address

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client initialization failed: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	return &secretManager{client: client}, nil
}

// getSecret reads a secret at the given path and returns its raw data map.
// For KV v2 backends the caller must unwrap the nested "data" key.
func (s *secretManager) getSecret(path string) (map[string]interface{}, error) {
	secret, err := s.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}
	return secret.Data, nil
}

// getKV2 reads from a KV v2 backend and returns the inner "data" map,
// unwrapping the v2 envelope. Falls back to the raw map for KV v1 backends
// that don't nest their payload.
func (s *secretManager) getKV2(path string) (map[string]interface{}, error) {
	raw, err := s.getSecret(path)
	if err != nil || raw == nil {
		return raw, err
	}
	data, ok := raw["data"].(map[string]interface{})
	if !ok {
		return raw, nil
	}
	return data, nil
}

// overlayVault reads the KV v2 secret at VAULT_SECRET_PATH (default
// secret/data/ride-ingest) and overwrites DatabaseURL/NATSURL when present,
// mirroring how other services in this stack resolve production secrets.
func overlayVault(cfg *Config, addr string) error {
	sm, err := newSecretManager(addr, getenvDefault("VAULT_TOKEN", ""))
	if err != nil {
		return err
	}

	path := getenvDefault("VAULT_SECRET_PATH", "secret/data/ride-ingest")
	data, err := sm.getKV2(path)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	if v, ok := data["DATABASE_URL"].(string); ok && v != "" {
		cfg.DatabaseURL = v
	}
	if v, ok := data["NATS_URL"].(string); ok && v != "" {
		cfg.NATSURL = v
	}

	return nil
}
