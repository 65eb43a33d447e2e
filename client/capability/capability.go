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

// Package capability defines the cryptographic collaborators the guardian
// protocol is written against. Concrete backends live in subpackages.
package capability

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/guardianvault/guardian/internal/securerandom"
)

// PublicKey is a public key parsed by, and only usable with, the backend that
// produced it.
type PublicKey interface {
	// Armored returns the key in the text form accepted by ParsePublicKey.
	Armored() (string, error)
}

// Fingerprinter is implemented by public keys with a stable printable
// identifier.
type Fingerprinter interface {
	Fingerprint() (string, error)
}

// Fingerprint returns pub's fingerprint, or "" if its backend defines none.
func Fingerprint(pub PublicKey) (string, error) {
	f, ok := pub.(Fingerprinter)
	if !ok {
		return "", nil
	}
	return f.Fingerprint()
}

// PrivateKey is a private key parsed by, and only usable with, the backend
// that produced it.
type PrivateKey interface {
	// Armored returns the key in the text form accepted by ParsePrivateKey.
	Armored() (string, error)
}

// KeyPair holds a freshly generated key pair.
type KeyPair struct {
	Public  PublicKey
	Private PrivateKey
}

// AsymmetricCrypto generates, parses and uses key pairs of a single scheme.
// Implementations must be safe for concurrent use.
type AsymmetricCrypto interface {
	GenerateKeyPair(ctx context.Context) (*KeyPair, error)
	// Encrypt returns armored ciphertext of plaintext for the holder of `to`.
	Encrypt(ctx context.Context, plaintext []byte, to PublicKey) (string, error)
	Decrypt(ctx context.Context, ciphertext string, key PrivateKey) ([]byte, error)
	ParsePublicKey(text string) (PublicKey, error)
	ParsePrivateKey(text string) (PrivateKey, error)
}

// Hasher computes fixed-size content digests.
type Hasher interface {
	Digest(data []byte) []byte
}

// HasherFunc adapts a digest function to the Hasher interface.
type HasherFunc func([]byte) []byte

// Digest calls f(data).
func (f HasherFunc) Digest(data []byte) []byte {
	return f(data)
}

// SecureRandom is a cryptographically secure source of random bytes backed by
// Tink's CSPRNG.
var SecureRandom io.Reader = securerandom.Reader

// Op names the capability operation that failed.
type Op string

// Operations reported in a CapabilityError.
const (
	OpGenerateKeyPair Op = "generate key pair"
	OpEncrypt         Op = "encrypt"
	OpDecrypt         Op = "decrypt"
	OpParsePublicKey  Op = "parse public key"
	OpParsePrivateKey Op = "parse private key"
	OpVerifyShare     Op = "verify share"
)

// CapabilityError is returned when a cryptographic capability fails.
type CapabilityError struct {
	Op  Op
	Err error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// Errorf returns a *CapabilityError for op with a formatted cause.
func Errorf(op Op, format string, args ...any) error {
	return &CapabilityError{Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap returns err as a *CapabilityError for op. Errors that already are
// capability errors are returned unchanged, as is nil.
func Wrap(op Op, err error) error {
	if err == nil {
		return nil
	}
	var capErr *CapabilityError
	if errors.As(err, &capErr) {
		return err
	}
	return &CapabilityError{Op: op, Err: err}
}
