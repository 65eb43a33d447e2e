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

// Package tinkhybrid implements capability.AsymmetricCrypto with Tink hybrid
// encryption (ECIES over P-256 with HKDF and AES-128-GCM). Keys are JSON
// keysets and messages are PEM armored.
package tinkhybrid

import (
	"bytes"
	"context"
	"encoding/pem"
	"strings"

	"github.com/google/tink/go/hybrid"
	"github.com/google/tink/go/insecurecleartextkeyset"
	"github.com/google/tink/go/keyset"
	"github.com/google/tink/go/tink"
	"github.com/guardianvault/guardian/client/capability"
)

const messageType = "TINK HYBRID MESSAGE"

// contextInfo binds ciphertexts to this application.
var contextInfo = []byte("guardian")

// Crypto is the Tink hybrid encryption backend.
type Crypto struct{}

// New returns a Tink hybrid backend.
func New() *Crypto {
	return &Crypto{}
}

// PublicKey is a public hybrid keyset.
type PublicKey struct {
	handle *keyset.Handle
	enc    tink.HybridEncrypt
}

// Armored returns the keyset as JSON.
func (k *PublicKey) Armored() (string, error) {
	var buf bytes.Buffer
	if err := k.handle.WriteWithNoSecrets(keyset.NewJSONWriter(&buf)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PrivateKey is a private hybrid keyset.
type PrivateKey struct {
	handle *keyset.Handle
	dec    tink.HybridDecrypt
}

// Armored returns the keyset, including secret key material, as JSON.
func (k *PrivateKey) Armored() (string, error) {
	var buf bytes.Buffer
	if err := insecurecleartextkeyset.Write(k.handle, keyset.NewJSONWriter(&buf)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func newPublicKey(h *keyset.Handle) (*PublicKey, error) {
	enc, err := hybrid.NewHybridEncrypt(h)
	if err != nil {
		return nil, err
	}
	return &PublicKey{handle: h, enc: enc}, nil
}

func newPrivateKey(h *keyset.Handle) (*PrivateKey, error) {
	dec, err := hybrid.NewHybridDecrypt(h)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{handle: h, dec: dec}, nil
}

// GenerateKeyPair creates a new ECIES-P256-HKDF-AES128-GCM keyset.
func (c *Crypto) GenerateKeyPair(ctx context.Context) (*capability.KeyPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, capability.Wrap(capability.OpGenerateKeyPair, err)
	}
	privHandle, err := keyset.NewHandle(hybrid.ECIESHKDFAES128GCMKeyTemplate())
	if err != nil {
		return nil, capability.Errorf(capability.OpGenerateKeyPair, "creating keyset: %v", err)
	}
	pubHandle, err := privHandle.Public()
	if err != nil {
		return nil, capability.Errorf(capability.OpGenerateKeyPair, "extracting public keyset: %v", err)
	}
	priv, err := newPrivateKey(privHandle)
	if err != nil {
		return nil, capability.Wrap(capability.OpGenerateKeyPair, err)
	}
	pub, err := newPublicKey(pubHandle)
	if err != nil {
		return nil, capability.Wrap(capability.OpGenerateKeyPair, err)
	}
	return &capability.KeyPair{Public: pub, Private: priv}, nil
}

// ParsePublicKey parses a JSON public keyset. Keysets holding secret key
// material are rejected.
func (c *Crypto) ParsePublicKey(text string) (capability.PublicKey, error) {
	if strings.TrimSpace(text) == "" {
		return nil, capability.Errorf(capability.OpParsePublicKey, "empty keyset")
	}
	h, err := keyset.ReadWithNoSecrets(keyset.NewJSONReader(strings.NewReader(text)))
	if err != nil {
		return nil, capability.Errorf(capability.OpParsePublicKey, "reading keyset: %v", err)
	}
	pub, err := newPublicKey(h)
	if err != nil {
		return nil, capability.Errorf(capability.OpParsePublicKey, "keyset is not a hybrid public keyset: %v", err)
	}
	return pub, nil
}

// ParsePrivateKey parses a cleartext JSON private keyset.
func (c *Crypto) ParsePrivateKey(text string) (capability.PrivateKey, error) {
	if strings.TrimSpace(text) == "" {
		return nil, capability.Errorf(capability.OpParsePrivateKey, "empty keyset")
	}
	h, err := insecurecleartextkeyset.Read(keyset.NewJSONReader(strings.NewReader(text)))
	if err != nil {
		return nil, capability.Errorf(capability.OpParsePrivateKey, "reading keyset: %v", err)
	}
	priv, err := newPrivateKey(h)
	if err != nil {
		return nil, capability.Errorf(capability.OpParsePrivateKey, "keyset is not a hybrid private keyset: %v", err)
	}
	return priv, nil
}

// Encrypt encrypts plaintext to `to` and returns a PEM armored message.
func (c *Crypto) Encrypt(ctx context.Context, plaintext []byte, to capability.PublicKey) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", capability.Wrap(capability.OpEncrypt, err)
	}
	key, ok := to.(*PublicKey)
	if !ok || key == nil {
		return "", capability.Errorf(capability.OpEncrypt, "unsupported public key type %T", to)
	}
	ct, err := key.enc.Encrypt(plaintext, contextInfo)
	if err != nil {
		return "", capability.Wrap(capability.OpEncrypt, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: messageType, Bytes: ct})), nil
}

// Decrypt decrypts a PEM armored message with key.
func (c *Crypto) Decrypt(ctx context.Context, ciphertext string, key capability.PrivateKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, capability.Wrap(capability.OpDecrypt, err)
	}
	priv, ok := key.(*PrivateKey)
	if !ok || priv == nil {
		return nil, capability.Errorf(capability.OpDecrypt, "unsupported private key type %T", key)
	}
	block, _ := pem.Decode([]byte(ciphertext))
	if block == nil || block.Type != messageType {
		return nil, capability.Errorf(capability.OpDecrypt, "failed to decode PEM block containing %s", messageType)
	}
	pt, err := priv.dec.Decrypt(block.Bytes, contextInfo)
	if err != nil {
		return nil, capability.Wrap(capability.OpDecrypt, err)
	}
	return pt, nil
}
