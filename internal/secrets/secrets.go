// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package secrets keeps credentials such as the Sheets service account or a
// redis password out of the config file. Config values written as
// keyring://service/key are replaced with the stored secret after load.
package secrets

// DefaultService is the keyring service used by `postgate secret`.
const DefaultService = "postgate"

// Store is a named secret store partitioned by service.
type Store interface {
	Set(service, key, value string) error
	// Get returns a CodeSecretNotFound error when the key is absent.
	Get(service, key string) (string, error)
	Delete(service, key string) error
	// List returns the key names stored for service, sorted.
	List(service string) ([]string, error)
}
