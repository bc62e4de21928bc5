package main

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "mailctl"

// errNotLoggedIn is returned when no token is stored for the backend.
var errNotLoggedIn = errors.New("not logged in, run: mailctl login -email you@domain")

func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailctl/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailctl-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Tokens are keyed by backend URL so one machine can talk to several servers.

func loadToken(backend string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(backend)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", errNotLoggedIn
	}
	if err != nil {
		return "", fmt.Errorf("reading token for %s: %w", backend, err)
	}
	return string(item.Data), nil
}

func saveToken(backend, token string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: backend, Data: []byte(token), Label: "mailctl " + backend}); err != nil {
		return fmt.Errorf("storing token for %s: %w", backend, err)
	}
	return nil
}

func deleteToken(backend string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	if err := ring.Remove(backend); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting token for %s: %w", backend, err)
	}
	return nil
}
