// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package client

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/guardianvault/guardian/client/capability"
	"github.com/guardianvault/guardian/secretsharing/secrets"
)

// HexBytes is a byte string that is written as lowercase hex in YAML and JSON.
type HexBytes []byte

// MarshalText implements encoding.TextMarshaler.
func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(b)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *HexBytes) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// String returns the hex form of b.
func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

// CustodianRecord is a custodian as supplied by a caller, before its public
// key has been validated.
type CustodianRecord struct {
	Identity  HexBytes `json:"identity"`
	PublicKey string   `json:"publicKey"`
}

// Custodian is a party entrusted with one encrypted share. It can only be
// obtained through ParseCustodian, so its key is always usable.
type Custodian struct {
	Identity  HexBytes
	PublicKey capability.PublicKey
}

// ParseCustodian validates record's identity and public key with crypto.
func ParseCustodian(crypto capability.AsymmetricCrypto, record CustodianRecord) (*Custodian, error) {
	if len(record.Identity) == 0 {
		return nil, secrets.Invalidf("custodian identity must not be empty")
	}
	if strings.TrimSpace(record.PublicKey) == "" {
		return nil, capability.Errorf(capability.OpParsePublicKey, "custodian %v has no public key", record.Identity)
	}
	pub, err := crypto.ParsePublicKey(record.PublicKey)
	if err != nil {
		return nil, capability.Wrap(capability.OpParsePublicKey, err)
	}
	return &Custodian{
		Identity:  bytes.Clone(record.Identity),
		PublicKey: pub,
	}, nil
}

// EncryptedShare is one share of a capsule's ephemeral key, encrypted to its owner.
type EncryptedShare struct {
	Owner HexBytes `json:"owner"`
	// Ciphertext is the armored encryption of the share's wire form.
	Ciphertext string `json:"ciphertext"`
	// ContentHash is the digest of the share's wire form.
	ContentHash HexBytes `json:"contentHash"`
}

// Capsule is the output of a distribution: a message encrypted under an
// ephemeral key, and the shares of that key held by the custodians.
type Capsule struct {
	ID               string           `json:"id"`
	EncryptedMessage string           `json:"encryptedMessage"`
	Shares           []EncryptedShare `json:"shares"`
}

// FindShare returns the share owned by identity.
func FindShare(capsule *Capsule, identity []byte) (EncryptedShare, bool) {
	if capsule == nil {
		return EncryptedShare{}, false
	}
	for _, share := range capsule.Shares {
		if bytes.Equal(share.Owner, identity) {
			return share, true
		}
	}
	return EncryptedShare{}, false
}
