package types

import "log/slog"

const redacted = "***REDACTED***"

// SecretString holds a credential such as the database URL. Every output
// path (fmt, JSON, slog) renders it as a placeholder; only Unmask returns
// the value.
type SecretString string

func (s SecretString) String() string {
	return redacted
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// LogValue keeps the secret out of structured logs even when a handler
// bypasses String.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// Unmask returns the plaintext. Call it only where the driver needs it.
func (s SecretString) Unmask() string {
	return string(s)
}
