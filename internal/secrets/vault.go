package secrets

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"
)

// VaultProvider resolves secrets from a HashiCorp Vault KV store.
type VaultProvider struct {
	client *vault.Client
	path   string
}

// NewVaultProvider dials addr and reads the KV mount rooted at path
// (e.g. "secret/data/relay") lazily, on each Resolve call, so a
// temporarily-unreachable Vault doesn't block relay startup.
func NewVaultProvider(addr, token, path string) (*VaultProvider, error) {
	cfg := vault.DefaultConfig()
	cfg.Address = addr
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("secrets: vault client: %w", err)
	}
	client.SetToken(token)
	return &VaultProvider{client: client, path: path}, nil
}

func (v *VaultProvider) Resolve(ctx context.Context, name string) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.path)
	if err != nil {
		return "", fmt.Errorf("secrets: vault read %s: %w", v.path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", ErrNotFound(name)
	}
	data, _ := secret.Data["data"].(map[string]interface{})
	if data == nil {
		data = secret.Data
	}
	raw, ok := data[name]
	if !ok {
		return "", ErrNotFound(name)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("secrets: vault value %s is not a string", name)
	}
	return s, nil
}
