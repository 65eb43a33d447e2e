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

// Package rsaenvelope implements capability.AsymmetricCrypto as an RSA-OAEP
// (SHA-256) wrapped data key over Tink streaming AES-GCM-HKDF. Private keys are
// either PEM encoded or held in Cloud KMS and referenced by gcp-kms:// URI.
package rsaenvelope

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"io"
	"strings"

	"github.com/guardianvault/guardian/client/capability"
	"github.com/guardianvault/guardian/client/cloudkms"
)

const (
	messageType    = "GUARDIAN RSA ENVELOPE"
	publicKeyType  = "PUBLIC KEY"
	privateKeyType = "RSA PRIVATE KEY"
	minKeyBits     = 2048
)

// Crypto is the RSA envelope backend.
type Crypto struct {
	bits int
	kms  cloudkms.Client
	rand io.Reader
}

// Option configures a Crypto.
type Option func(*Crypto)

// WithKMSClient sets the client used to decrypt with gcp-kms:// private keys.
func WithKMSClient(client cloudkms.Client) Option {
	return func(c *Crypto) { c.kms = client }
}

// New returns an RSA envelope backend generating keys of the given size.
func New(bits int, opts ...Option) *Crypto {
	c := &Crypto{bits: bits, rand: capability.SecureRandom}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PublicKey is an RSA public key.
type PublicKey struct {
	key *rsa.PublicKey
}

// Armored returns the key as a PKIX "PUBLIC KEY" PEM block.
func (k *PublicKey) Armored() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(k.key)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: publicKeyType, Bytes: der})), nil
}

// Fingerprint returns the base64 SHA-256 digest of the DER encoded public key.
func (k *PublicKey) Fingerprint() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(k.key)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	sha := sha256.Sum256(der)
	return base64.StdEncoding.EncodeToString(sha[:]), nil
}

// PrivateKey is an RSA private key held in memory.
type PrivateKey struct {
	key *rsa.PrivateKey
}

// Armored returns the key as a PKCS#1 "RSA PRIVATE KEY" PEM block.
func (k *PrivateKey) Armored() (string, error) {
	return string(pem.EncodeToMemory(&pem.Block{Type: privateKeyType, Bytes: x509.MarshalPKCS1PrivateKey(k.key)})), nil
}

// KMSPrivateKey references a decryption key version held in Cloud KMS.
type KMSPrivateKey struct {
	name string
}

// Armored returns the gcp-kms:// URI of the key.
func (k *KMSPrivateKey) Armored() (string, error) {
	return cloudkms.KeyURIPrefix + k.name, nil
}

// GenerateKeyPair generates an in-memory RSA key pair.
func (c *Crypto) GenerateKeyPair(ctx context.Context) (*capability.KeyPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, capability.Wrap(capability.OpGenerateKeyPair, err)
	}
	if c.bits < minKeyBits {
		return nil, capability.Errorf(capability.OpGenerateKeyPair, "key size %d is below the minimum of %d bits", c.bits, minKeyBits)
	}
	key, err := rsa.GenerateKey(c.rand, c.bits)
	if err != nil {
		return nil, capability.Wrap(capability.OpGenerateKeyPair, err)
	}
	return &capability.KeyPair{
		Public:  &PublicKey{key: &key.PublicKey},
		Private: &PrivateKey{key: key},
	}, nil
}

// ParsePublicKey parses a PKIX "PUBLIC KEY" PEM block holding an RSA key.
func (c *Crypto) ParsePublicKey(text string) (capability.PublicKey, error) {
	block, _ := pem.Decode([]byte(text))
	if block == nil || block.Type != publicKeyType {
		return nil, capability.Errorf(capability.OpParsePublicKey, "failed to decode PEM block containing public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, capability.Errorf(capability.OpParsePublicKey, "failed to parse public key from PEM: %v", err)
	}
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, capability.Errorf(capability.OpParsePublicKey, "public key is %T, not RSA", pub)
	}
	if key.N.BitLen() < minKeyBits {
		return nil, capability.Errorf(capability.OpParsePublicKey, "key size %d is below the minimum of %d bits", key.N.BitLen(), minKeyBits)
	}
	return &PublicKey{key: key}, nil
}

// ParsePrivateKey parses a PKCS#1 "RSA PRIVATE KEY" PEM block, or a gcp-kms://
// URI naming a crypto key version.
func (c *Crypto) ParsePrivateKey(text string) (capability.PrivateKey, error) {
	if cloudkms.IsKeyURI(strings.TrimSpace(text)) {
		name, err := cloudkms.KeyName(strings.TrimSpace(text))
		if err != nil {
			return nil, capability.Wrap(capability.OpParsePrivateKey, err)
		}
		return &KMSPrivateKey{name: name}, nil
	}
	block, _ := pem.Decode([]byte(text))
	if block == nil || block.Type != privateKeyType {
		return nil, capability.Errorf(capability.OpParsePrivateKey, "failed to decode PEM block containing RSA private key")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, capability.Errorf(capability.OpParsePrivateKey, "failed to parse PKCS1 private key from PEM: %v", err)
	}
	return &PrivateKey{key: key}, nil
}

// Encrypt wraps a fresh data key to `to` and encrypts plaintext under it. The
// armored envelope holds the wrapped key length (big endian uint16), the
// wrapped key and the AEAD ciphertext, authenticated with the wrapped key as AAD.
func (c *Crypto) Encrypt(ctx context.Context, plaintext []byte, to capability.PublicKey) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", capability.Wrap(capability.OpEncrypt, err)
	}
	key, ok := to.(*PublicKey)
	if !ok || key == nil {
		return "", capability.Errorf(capability.OpEncrypt, "unsupported public key type %T", to)
	}

	dataKey := make([]byte, dataKeyBytes)
	if _, err := io.ReadFull(c.rand, dataKey); err != nil {
		return "", capability.Errorf(capability.OpEncrypt, "generating data key: %v", err)
	}
	defer clear(dataKey)

	wrapped, err := rsa.EncryptOAEP(sha256.New(), c.rand, key.key, dataKey, nil)
	if err != nil {
		return "", capability.Errorf(capability.OpEncrypt, "wrapping data key: %v", err)
	}
	ct, err := aeadEncrypt(dataKey, plaintext, wrapped)
	if err != nil {
		return "", capability.Wrap(capability.OpEncrypt, err)
	}

	blob := make([]byte, 2, 2+len(wrapped)+len(ct))
	binary.BigEndian.PutUint16(blob, uint16(len(wrapped)))
	blob = append(blob, wrapped...)
	blob = append(blob, ct...)
	return string(pem.EncodeToMemory(&pem.Block{Type: messageType, Bytes: blob})), nil
}

func splitEnvelope(ciphertext string) (wrapped, ct []byte, err error) {
	block, _ := pem.Decode([]byte(ciphertext))
	if block == nil || block.Type != messageType {
		return nil, nil, fmt.Errorf("failed to decode PEM block containing %s", messageType)
	}
	blob := block.Bytes
	if len(blob) < 2 {
		return nil, nil, fmt.Errorf("envelope is truncated")
	}
	n := int(binary.BigEndian.Uint16(blob))
	if len(blob) < 2+n {
		return nil, nil, fmt.Errorf("envelope is truncated: wrapped key needs %d bytes, have %d", n, len(blob)-2)
	}
	return blob[2 : 2+n], blob[2+n:], nil
}

// Decrypt unwraps the data key with key, locally or through Cloud KMS, and
// decrypts the envelope payload.
func (c *Crypto) Decrypt(ctx context.Context, ciphertext string, key capability.PrivateKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, capability.Wrap(capability.OpDecrypt, err)
	}
	wrapped, ct, err := splitEnvelope(ciphertext)
	if err != nil {
		return nil, capability.Wrap(capability.OpDecrypt, err)
	}

	var dataKey []byte
	switch k := key.(type) {
	case *PrivateKey:
		dataKey, err = rsa.DecryptOAEP(sha256.New(), nil, k.key, wrapped, nil)
		if err != nil {
			return nil, capability.Errorf(capability.OpDecrypt, "unwrapping data key: %v", err)
		}
	case *KMSPrivateKey:
		if c.kms == nil {
			return nil, capability.Errorf(capability.OpDecrypt, "no Cloud KMS client configured for %s", k.name)
		}
		dataKey, err = cloudkms.Decrypt(ctx, c.kms, cloudkms.DecryptOpts{Ciphertext: wrapped, KeyName: k.name})
		if err != nil {
			return nil, capability.Errorf(capability.OpDecrypt, "unwrapping data key with Cloud KMS: %w", err)
		}
	default:
		return nil, capability.Errorf(capability.OpDecrypt, "unsupported private key type %T", key)
	}
	defer clear(dataKey)
	if len(dataKey) != dataKeyBytes {
		return nil, capability.Errorf(capability.OpDecrypt, "data key has length %d, expected %d", len(dataKey), dataKeyBytes)
	}

	pt, err := aeadDecrypt(dataKey, ct, wrapped)
	if err != nil {
		return nil, capability.Wrap(capability.OpDecrypt, err)
	}
	return pt, nil
}
