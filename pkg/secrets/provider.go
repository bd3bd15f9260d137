package secrets

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Provider defines a generic secrets manager interface.
type Provider interface {
	// GetSecret retrieves a secret by name and returns its key-value map.
	GetSecret(ctx context.Context, key string) (map[string]string, error)

	// ListSecrets returns the names of all secrets whose name matches the given prefix.
	ListSecrets(ctx context.Context, prefix string) ([]string, error)
}

// StaticProvider serves secrets from memory. It backs local runs where
// SECRETS_ENABLED is false and credentials come from the environment.
type StaticProvider struct {
	secrets map[string]map[string]string
}

// NewStaticProvider copies secrets into a new provider.
func NewStaticProvider(secrets map[string]map[string]string) *StaticProvider {
	cp := make(map[string]map[string]string, len(secrets))
	for name, kv := range secrets {
		inner := make(map[string]string, len(kv))
		for k, v := range kv {
			inner[k] = v
		}
		cp[strings.ToLower(name)] = inner
	}
	return &StaticProvider{secrets: cp}
}

func (p *StaticProvider) GetSecret(_ context.Context, key string) (map[string]string, error) {
	v, ok := p.secrets[strings.ToLower(key)]
	if !ok {
		return nil, fmt.Errorf("secret not found: %s", key)
	}
	return v, nil
}

func (p *StaticProvider) ListSecrets(_ context.Context, prefix string) ([]string, error) {
	prefix = strings.ToLower(prefix)
	var names []string
	for name := range p.secrets {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
