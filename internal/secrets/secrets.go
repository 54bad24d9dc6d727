// Package secrets resolves run-time credentials (database DSNs) from an
// external secrets store instead of embedding them in the TOML config.
package secrets

import "context"

// Provider resolves a named secret to its string value.
type Provider interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// Static is a Provider backed by a fixed map, used when no backend is
// configured and DSNs are supplied directly in config.
type Static map[string]string

func (s Static) Resolve(_ context.Context, name string) (string, error) {
	v, ok := s[name]
	if !ok {
		return "", ErrNotFound(name)
	}
	return v, nil
}

// ErrNotFound reports that name has no value in the provider.
type ErrNotFound string

func (e ErrNotFound) Error() string {
	return "secrets: no value for " + string(e)
}
