// Package secrets holds credentials that may be rotated while the process
// runs. Values are reloaded from their source on demand (SIGHUP in the
// server) and swapped in atomically.
package secrets

import (
	"fmt"
	"sync/atomic"
)

// Loader retrieves the current secret values from their source.
type Loader func() (map[string]string, error)

// Vault serves the most recently loaded secret values.
type Vault struct {
	values atomic.Pointer[map[string]string]
	loader Loader
}

// NewVault creates a Vault, calling loader once for the initial values.
func NewVault(loader Loader) (*Vault, error) {
	v := &Vault{loader: loader}
	if err := v.load(); err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return v, nil
}

// Get returns the secret for key, or "" if it is not set.
func (v *Vault) Get(key string) string {
	return (*v.values.Load())[key]
}

// Getter returns a func reading key on every call, for consumers that must
// see rotated values.
func (v *Vault) Getter(key string) func() string {
	return func() string { return v.Get(key) }
}

// Reload replaces all values. On error the previous values stay in place.
func (v *Vault) Reload() error {
	if err := v.load(); err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	return nil
}

// Redacted returns a log-safe rendering of the secret for key.
func (v *Vault) Redacted(key string) string {
	s := v.Get(key)
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "****"
	default:
		return s[:2] + "****"
	}
}

func (v *Vault) load() error {
	vals, err := v.loader()
	if err != nil {
		return err
	}
	if vals == nil {
		vals = map[string]string{}
	}
	v.values.Store(&vals)
	return nil
}
