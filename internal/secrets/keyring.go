// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package secrets

import (
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/zalando/go-keyring"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

// indexKey holds the newline-separated key names of a service; the OS
// keyrings cannot enumerate entries themselves.
const indexKey = ".postgate-index"

// KeyringStore is a Store over the OS keyring (Keychain, Secret Service or
// Windows Credential Manager).
type KeyringStore struct{}

func NewKeyringStore() *KeyringStore { return &KeyringStore{} }

func (s *KeyringStore) Set(service, key, value string) error {
	if err := checkName(service, key); err != nil {
		return err
	}
	if err := keyring.Set(service, key, value); err != nil {
		return pgerr.Wrapf(err, pgerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}

	keys, err := s.List(service)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	return s.writeIndex(service, append(keys, key))
}

func (s *KeyringStore) Get(service, key string) (string, error) {
	if err := checkName(service, key); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", pgerr.Errorf(pgerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	case err != nil:
		return "", pgerr.Wrapf(err, pgerr.CodeSecretStoreFailure, "reading secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkName(service, key); err != nil {
		return err
	}
	err := keyring.Delete(service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return pgerr.Errorf(pgerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	case err != nil:
		return pgerr.Wrapf(err, pgerr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}

	keys, err := s.List(service)
	if err != nil {
		return err
	}
	return s.writeIndex(service, slices.DeleteFunc(keys, func(k string) bool { return k == key }))
}

func (s *KeyringStore) List(service string) ([]string, error) {
	raw, err := keyring.Get(service, indexKey)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, pgerr.Wrapf(err, pgerr.CodeSecretListFailure, "reading key index of %s", service)
	}

	var keys []string
	for _, k := range strings.Split(raw, "\n") {
		if k != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *KeyringStore) writeIndex(service string, keys []string) error {
	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("removing empty key index", "service", service, "error", err)
		}
		return nil
	}

	slices.Sort(keys)
	if err := keyring.Set(service, indexKey, strings.Join(keys, "\n")); err != nil {
		return pgerr.Wrapf(err, pgerr.CodeSecretListFailure, "writing key index of %s", service)
	}
	return nil
}

func checkName(service, key string) error {
	switch {
	case service == "":
		return pgerr.New(pgerr.CodeSecretInvalidInput, "secret service must not be empty")
	case key == "" || key == indexKey || strings.Contains(key, "\n"):
		return pgerr.Errorf(pgerr.CodeSecretInvalidInput, "invalid secret key %q", key)
	}
	return nil
}
