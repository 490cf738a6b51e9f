// Package keyring stores the signer seed in the OS keyring so it never
// has to live in a plaintext .env file. The .env file and environment
// still take precedence; the keyring is the fallback source.
package keyring

import (
	"fmt"
	"sync"

	"github.com/99designs/keyring"
)

const (
	serviceName = "migmon"
	seedKey     = "signer-seed"
)

var (
	ring     keyring.Keyring
	ringOnce sync.Once
	ringErr  error
)

func initKeyring() (keyring.Keyring, error) {
	ringOnce.Do(func() {
		ring, ringErr = keyring.Open(keyring.Config{
			ServiceName: serviceName,
			AllowedBackends: []keyring.BackendType{
				keyring.KeychainBackend,      // macOS Keychain
				keyring.SecretServiceBackend, // Linux Secret Service (GNOME Keyring, KWallet)
				keyring.WinCredBackend,       // Windows Credential Manager
				keyring.PassBackend,          // Pass (password-store.org)
			},
		})
	})
	return ring, ringErr
}

// SetSeed stores the signer seed in the OS keyring.
func SetSeed(seed string) error {
	kr, err := initKeyring()
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	return kr.Set(keyring.Item{
		Key:  seedKey,
		Data: []byte(seed),
	})
}

// GetSeed retrieves the stored signer seed.
// Returns empty string if no seed is stored.
func GetSeed() (string, error) {
	kr, err := initKeyring()
	if err != nil {
		return "", fmt.Errorf("failed to open keyring: %w", err)
	}

	item, err := kr.Get(seedKey)
	if err == keyring.ErrKeyNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to retrieve seed: %w", err)
	}
	return string(item.Data), nil
}

// DeleteSeed removes the stored signer seed.
func DeleteSeed() error {
	kr, err := initKeyring()
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	err = kr.Remove(seedKey)
	if err == keyring.ErrKeyNotFound {
		return fmt.Errorf("no seed stored")
	}
	return err
}
