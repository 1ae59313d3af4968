// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-vault.
//
// go-vault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package secrets

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-vault/pkg/types"
)

// Secret is a single stored item. ID is assigned once and never changes.
type Secret struct {
	ID    uuid.UUID `json:"id"`
	Kind  string    `json:"kind"`
	Name  string    `json:"name"`
	Value string    `json:"value"`
}

// NewSecret creates a Secret with a fresh random id
func NewSecret(kind, name, value string) *Secret {
	return &Secret{
		ID:    uuid.New(),
		Kind:  kind,
		Name:  name,
		Value: value,
	}
}

// Marshal returns the canonical JSON form of the secret
func (s *Secret) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: secrets: %v", types.ErrSerialization, err)
	}
	return data, nil
}

// UnmarshalSecret parses the canonical JSON form
func UnmarshalSecret(data []byte) (*Secret, error) {
	var s Secret
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", types.ErrSerialization, ErrInvalidSecret, err)
	}
	if s.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: %w: missing id", types.ErrSerialization, ErrInvalidSecret)
	}
	return &s, nil
}
