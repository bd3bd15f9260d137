package secrets

import (
	"context"
	"fmt"
	"strings"

	pkgsecrets "github.com/Checker-Finance/market-intel/pkg/secrets"
	"go.uber.org/zap"
)

// Credentials are the per-provider API credentials.
type Credentials struct {
	AccessToken  string
	ClientID     string
	ClientSecret string
}

// ParseCredentials extracts Credentials from a raw secret map.
func ParseCredentials(m map[string]string) (Credentials, error) {
	c := Credentials{
		AccessToken:  strings.TrimSpace(m["access_token"]),
		ClientID:     strings.TrimSpace(m["client_id"]),
		ClientSecret: strings.TrimSpace(m["client_secret"]),
	}
	if c.AccessToken == "" && (c.ClientID == "" || c.ClientSecret == "") {
		return Credentials{}, fmt.Errorf("secret needs access_token or client_id/client_secret")
	}
	return c, nil
}

// Resolver resolves provider credentials from a secrets Provider, caching
// results locally to reduce API calls.
//
// Secret naming convention: {env}/{service}/{provider}
type Resolver struct {
	logger   *zap.Logger
	env      string
	service  string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[Credentials]
}

// NewResolver constructs a credential resolver.
func NewResolver(
	logger *zap.Logger,
	env string,
	service string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[Credentials],
) *Resolver {
	return &Resolver{
		logger:   logger,
		env:      env,
		service:  service,
		provider: provider,
		cache:    cache,
	}
}

// SecretName builds the secret key for a provider.
func (r *Resolver) SecretName(provider string) string {
	return strings.ToLower(fmt.Sprintf("%s/%s/%s", r.env, r.service, provider))
}

// Resolve fetches or returns cached credentials for a provider.
func (r *Resolver) Resolve(ctx context.Context, provider string) (Credentials, error) {
	name := r.SecretName(provider)

	if c, ok := r.cache.Get(name); ok {
		return c, nil
	}

	raw, err := r.provider.GetSecret(ctx, name)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed",
			zap.String("key", name),
			zap.Error(err))
		return Credentials{}, fmt.Errorf("resolve credentials for %q: %w", provider, err)
	}

	c, err := ParseCredentials(raw)
	if err != nil {
		return Credentials{}, fmt.Errorf("parse secret %q: %w", name, err)
	}

	r.cache.Put(name, c)
	r.logger.Info("secrets.credentials_resolved", zap.String("provider", provider))
	return c, nil
}

// Invalidate drops cached credentials, e.g. after the provider rejects them.
func (r *Resolver) Invalidate(provider string) {
	r.cache.Bust(r.SecretName(provider))
}

// Configured lists the providers that have credentials stored.
func (r *Resolver) Configured(ctx context.Context) ([]string, error) {
	prefix := strings.ToLower(fmt.Sprintf("%s/%s/", r.env, r.service))
	names, err := r.provider.ListSecrets(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list provider secrets: %w", err)
	}
	var out []string
	for _, n := range names {
		p := strings.TrimPrefix(strings.ToLower(n), prefix)
		if p != "" && !strings.Contains(p, "/") {
			out = append(out, p)
		}
	}
	return out, nil
}

// TokenSource returns a function yielding the access token for provider.
func (r *Resolver) TokenSource(provider string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		c, err := r.Resolve(ctx, provider)
		if err != nil {
			return "", err
		}
		return c.AccessToken, nil
	}
}
