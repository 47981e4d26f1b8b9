// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package secrets

import (
	"strings"

	"github.com/spf13/viper"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

const scheme = "keyring://"

// IsURI reports whether value is a keyring reference.
func IsURI(value string) bool {
	return strings.HasPrefix(value, scheme)
}

// URI formats a keyring reference.
func URI(service, key string) string {
	return scheme + service + "/" + key
}

// ParseURI splits keyring://service/key. The key may contain slashes.
func ParseURI(uri string) (service, key string, err error) {
	rest, ok := strings.CutPrefix(uri, scheme)
	if !ok {
		return "", "", pgerr.Errorf(pgerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}
	service, key, ok = strings.Cut(rest, "/")
	if !ok || service == "" || key == "" {
		return "", "", pgerr.Errorf(pgerr.CodeSecretInvalidInput, "invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return service, key, nil
}

// Resolve returns value unchanged unless it is a keyring URI, in which case
// the referenced secret is returned.
func Resolve(s Store, value string) (string, error) {
	if !IsURI(value) {
		return value, nil
	}
	service, key, err := ParseURI(value)
	if err != nil {
		return "", err
	}
	secret, err := s.Get(service, key)
	if err != nil {
		return "", pgerr.Wrapf(err, pgerr.CodeSecretResolveFailure, "resolving %q", value)
	}
	return secret, nil
}

// ResolveViper replaces every keyring URI held by v with its secret. Keys
// that fail to resolve keep their URI and are reported in the returned
// errors, tagged with the config key.
func ResolveViper(v *viper.Viper, s Store) []error {
	var errs []error
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if !ok || !IsURI(val) {
			continue
		}
		resolved, err := Resolve(s, val)
		if err != nil {
			errs = append(errs, pgerr.With(err, pgerr.FieldKey(key)))
			continue
		}
		v.Set(key, resolved)
	}
	return errs
}
