// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package types

import (
	"strings"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

// Item is a candidate for one action. The admission logic never looks
// inside it.
type Item struct {
	Title       string `json:"title" yaml:"title"`
	URL         string `json:"url" yaml:"url"`
	Price       string `json:"price,omitempty" yaml:"price,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Sheet       string `json:"sheet,omitempty" yaml:"sheet,omitempty"`
}

// Validate checks the fields an action needs.
func (i Item) Validate() error {
	if strings.TrimSpace(i.URL) == "" {
		return pgerr.New(pgerr.CodeActionInvalidInput, "item has no url", pgerr.Field("title", i.Title))
	}
	if strings.TrimSpace(i.Title) == "" {
		return pgerr.New(pgerr.CodeActionInvalidInput, "item has no title", pgerr.FieldItemURL(i.URL))
	}
	return nil
}
