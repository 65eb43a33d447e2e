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

// Package pgp implements capability.AsymmetricCrypto with armored OpenPGP RSA
// keys and messages.
package pgp

import (
	"bytes"
	"context"
	"crypto"
	"fmt"
	"io"
	"strings"

	"github.com/guardianvault/guardian/client/capability"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	"golang.org/x/crypto/openpgp/packet"
)

const (
	messageType = "PGP MESSAGE"
	identity    = "guardian ephemeral key"
)

// Crypto is the OpenPGP backend.
type Crypto struct {
	bits int
}

// New returns an OpenPGP backend generating RSA keys of the given size.
func New(bits int) *Crypto {
	return &Crypto{bits: bits}
}

func (c *Crypto) config() *packet.Config {
	return &packet.Config{
		RSABits:     c.bits,
		DefaultHash: crypto.SHA256,
		Rand:        capability.SecureRandom,
	}
}

// PublicKey is an OpenPGP public key with at least one encryption-capable key.
type PublicKey struct {
	entity *openpgp.Entity
}

// Armored returns the ASCII-armored public key block.
func (k *PublicKey) Armored() (string, error) {
	return armorEntity(openpgp.PublicKeyType, func(w io.Writer) error {
		return k.entity.Serialize(w)
	})
}

// Fingerprint returns the hex fingerprint of the primary key.
func (k *PublicKey) Fingerprint() (string, error) {
	return fmt.Sprintf("%X", k.entity.PrimaryKey.Fingerprint), nil
}

// PrivateKey is an unencrypted OpenPGP private key.
type PrivateKey struct {
	entity *openpgp.Entity
	// armored is the text the key was parsed from, or its serialization
	// when generated.
	armored string
}

// Armored returns the ASCII-armored private key block.
func (k *PrivateKey) Armored() (string, error) {
	return k.armored, nil
}

func armorEntity(blockType string, serialize func(io.Writer) error) (string, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, blockType, nil)
	if err != nil {
		return "", err
	}
	if err := serialize(w); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// GenerateKeyPair creates an RSA primary key with an RSA encryption subkey.
func (c *Crypto) GenerateKeyPair(ctx context.Context) (*capability.KeyPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, capability.Wrap(capability.OpGenerateKeyPair, err)
	}
	cfg := c.config()
	entity, err := openpgp.NewEntity(identity, "", "", cfg)
	if err != nil {
		return nil, capability.Errorf(capability.OpGenerateKeyPair, "creating entity: %v", err)
	}
	armored, err := armorEntity(openpgp.PrivateKeyType, func(w io.Writer) error {
		return entity.SerializePrivate(w, cfg)
	})
	if err != nil {
		return nil, capability.Errorf(capability.OpGenerateKeyPair, "armoring private key: %v", err)
	}
	return &capability.KeyPair{
		Public:  &PublicKey{entity: entity},
		Private: &PrivateKey{entity: entity, armored: armored},
	}, nil
}

func readSingleEntity(text string) (*openpgp.Entity, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("reading armored key: %v", err)
	}
	if len(entities) != 1 {
		return nil, fmt.Errorf("expected exactly one key, found %d", len(entities))
	}
	return entities[0], nil
}

// hasEncryptionKey reports whether e has a primary key or subkey that
// openpgp.Encrypt will select.
func hasEncryptionKey(e *openpgp.Entity) bool {
	for _, sub := range e.Subkeys {
		if sub.Sig != nil && sub.Sig.FlagsValid && sub.Sig.FlagEncryptCommunications && sub.PublicKey.PubKeyAlgo.CanEncrypt() {
			return true
		}
	}
	if !e.PrimaryKey.PubKeyAlgo.CanEncrypt() {
		return false
	}
	for _, id := range e.Identities {
		if id.SelfSignature != nil && (!id.SelfSignature.FlagsValid || id.SelfSignature.FlagEncryptCommunications) {
			return true
		}
	}
	return false
}

// ParsePublicKey parses an armored public key block holding exactly one key.
func (c *Crypto) ParsePublicKey(text string) (capability.PublicKey, error) {
	if strings.TrimSpace(text) == "" {
		return nil, capability.Errorf(capability.OpParsePublicKey, "empty key")
	}
	entity, err := readSingleEntity(text)
	if err != nil {
		return nil, capability.Wrap(capability.OpParsePublicKey, err)
	}
	if !hasEncryptionKey(entity) {
		return nil, capability.Errorf(capability.OpParsePublicKey, "key %X has no encryption key", entity.PrimaryKey.Fingerprint)
	}
	return &PublicKey{entity: entity}, nil
}

// ParsePrivateKey parses an armored, unencrypted private key block.
func (c *Crypto) ParsePrivateKey(text string) (capability.PrivateKey, error) {
	if strings.TrimSpace(text) == "" {
		return nil, capability.Errorf(capability.OpParsePrivateKey, "empty key")
	}
	entity, err := readSingleEntity(text)
	if err != nil {
		return nil, capability.Wrap(capability.OpParsePrivateKey, err)
	}
	if entity.PrivateKey == nil {
		return nil, capability.Errorf(capability.OpParsePrivateKey, "key %X holds no private key material", entity.PrimaryKey.Fingerprint)
	}
	if entity.PrivateKey.Encrypted {
		return nil, capability.Errorf(capability.OpParsePrivateKey, "passphrase protected keys are not supported")
	}
	for _, sub := range entity.Subkeys {
		if sub.PrivateKey != nil && sub.PrivateKey.Encrypted {
			return nil, capability.Errorf(capability.OpParsePrivateKey, "passphrase protected keys are not supported")
		}
	}
	return &PrivateKey{entity: entity, armored: text}, nil
}

// Encrypt encrypts plaintext to `to` and returns an armored PGP message.
func (c *Crypto) Encrypt(ctx context.Context, plaintext []byte, to capability.PublicKey) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", capability.Wrap(capability.OpEncrypt, err)
	}
	key, ok := to.(*PublicKey)
	if !ok || key == nil {
		return "", capability.Errorf(capability.OpEncrypt, "unsupported public key type %T", to)
	}

	var buf bytes.Buffer
	aw, err := armor.Encode(&buf, messageType, nil)
	if err != nil {
		return "", capability.Wrap(capability.OpEncrypt, err)
	}
	w, err := openpgp.Encrypt(aw, []*openpgp.Entity{key.entity}, nil, &openpgp.FileHints{IsBinary: true}, c.config())
	if err != nil {
		return "", capability.Errorf(capability.OpEncrypt, "creating encrypt writer: %v", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return "", capability.Errorf(capability.OpEncrypt, "writing plaintext: %v", err)
	}
	if err := w.Close(); err != nil {
		return "", capability.Errorf(capability.OpEncrypt, "closing encrypt writer: %v", err)
	}
	if err := aw.Close(); err != nil {
		return "", capability.Errorf(capability.OpEncrypt, "closing armor writer: %v", err)
	}
	return buf.String(), nil
}

// Decrypt decrypts an armored PGP message with key.
func (c *Crypto) Decrypt(ctx context.Context, ciphertext string, key capability.PrivateKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, capability.Wrap(capability.OpDecrypt, err)
	}
	priv, ok := key.(*PrivateKey)
	if !ok || priv == nil {
		return nil, capability.Errorf(capability.OpDecrypt, "unsupported private key type %T", key)
	}

	block, err := armor.Decode(strings.NewReader(ciphertext))
	if err != nil {
		return nil, capability.Errorf(capability.OpDecrypt, "decoding armor: %v", err)
	}
	if block.Type != messageType {
		return nil, capability.Errorf(capability.OpDecrypt, "unexpected armor type %q", block.Type)
	}
	md, err := openpgp.ReadMessage(block.Body, openpgp.EntityList{priv.entity}, nil, c.config())
	if err != nil {
		return nil, capability.Errorf(capability.OpDecrypt, "reading message: %v", err)
	}
	if !md.IsEncrypted || md.DecryptedWith.Entity != priv.entity {
		return nil, capability.Errorf(capability.OpDecrypt, "message is not encrypted to this key")
	}
	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, capability.Errorf(capability.OpDecrypt, "reading message body: %v", err)
	}
	return plaintext, nil
}
