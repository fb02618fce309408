package config

// Backend persists kashi settings and secrets on the host.
//
// Settings are addressed by the dotted keys of the key table
// ("server.port", "preload.delay"). Secrets are addressed by account name
// under SecretService and never appear in `kashi config show`.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error

	// Secret returns the value stored for account. ok is false when nothing
	// is stored.
	Secret(account string) (val string, ok bool, err error)
	SetSecret(account, val string) error

	// Location describes where settings and secrets are kept.
	Location() string
}

// SecretService groups kashi's entries in the platform secret store.
const SecretService = "kashi"

// Secret store accounts.
const (
	AccountAPIKey      = "api_key"
	AccountServerToken = "server_token"
)
