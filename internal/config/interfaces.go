package config

import "context"

// SecretProvider resolves secret values by key. SSMProvider serves deployed
// environments; APP_ENV=local skips resolution entirely.
type SecretProvider interface {
	// GetParametersBatch returns key -> plaintext for every key it could
	// resolve. Keys it cannot find are omitted; the loader reports them.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
