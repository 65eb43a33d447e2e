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

// Package testutil contains utilities for unit tests.
package testutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"hash/crc32"
	"sync"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	wrapperspb "google.golang.org/protobuf/types/known/wrapperspb"
)

// TestKeyBits is the RSA modulus size of keys held by the fake KMS.
const TestKeyBits = 2048

var (
	gcpKMSPrefix = "gcp-kms://"

	// TestKeyName is a test Cloud KMS crypto key version name.
	TestKeyName = "projects/test/locations/test/keyRings/test/cryptoKeys/test/cryptoKeyVersions/1"
	// TestKeyURI is a test key URI corresponding to TestKeyName.
	TestKeyURI = gcpKMSPrefix + TestKeyName

	// TestHSMKeyName is a test key name for an HSM-protected key.
	TestHSMKeyName = "projects/test/locations/test/keyRings/test/cryptoKeys/testHsm/cryptoKeyVersions/1"
	// TestHSMKeyURI is a test key URI corresponding to TestHSMKeyName.
	TestHSMKeyURI = gcpKMSPrefix + TestHSMKeyName

	// TestMissingKeyName is a key name the fake KMS does not know.
	TestMissingKeyName = "projects/test/locations/test/keyRings/test/cryptoKeys/missing/cryptoKeyVersions/1"
	// TestMissingKeyURI is a test key URI corresponding to TestMissingKeyName.
	TestMissingKeyURI = gcpKMSPrefix + TestMissingKeyName
)

func crc32c(data []byte) uint32 {
	t := crc32.MakeTable(crc32.Castagnoli)
	return crc32.Checksum(data, t)
}

// FakeKeyManagementClient is a fake version of Cloud KMS Key Management client
// holding RSA decryption keys for TestKeyName and TestHSMKeyName.
type FakeKeyManagementClient struct {
	GetPublicKeyFunc      func(context.Context, *kmspb.GetPublicKeyRequest, ...gax.CallOption) (*kmspb.PublicKey, error)
	AsymmetricDecryptFunc func(context.Context, *kmspb.AsymmetricDecryptRequest, ...gax.CallOption) (*kmspb.AsymmetricDecryptResponse, error)

	mu   sync.Mutex
	keys map[string]*rsa.PrivateKey
}

// Key returns the private key the fake holds for name, generating it on first
// use, or nil if the fake does not know the name.
func (f *FakeKeyManagementClient) Key(name string) *rsa.PrivateKey {
	if name != TestKeyName && name != TestHSMKeyName {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = make(map[string]*rsa.PrivateKey)
	}
	key, ok := f.keys[name]
	if !ok {
		var err error
		key, err = rsa.GenerateKey(rand.Reader, TestKeyBits)
		if err != nil {
			panic(err)
		}
		f.keys[name] = key
	}
	return key
}

// PublicKeyPEM returns the PEM encoded public key the fake holds for name.
func (f *FakeKeyManagementClient) PublicKeyPEM(name string) string {
	key := f.Key(name)
	if key == nil {
		return ""
	}
	return PublicKeyPEM(&key.PublicKey)
}

// ValidPublicKeyResponse returns a fake successful response for CloudKMS GetPublicKey.
func (f *FakeKeyManagementClient) ValidPublicKeyResponse(name string) *kmspb.PublicKey {
	pemText := f.PublicKeyPEM(name)
	return &kmspb.PublicKey{
		Name:      name,
		Pem:       pemText,
		PemCrc32C: wrapperspb.Int64(int64(crc32c([]byte(pemText)))),
		Algorithm: kmspb.CryptoKeyVersion_RSA_DECRYPT_OAEP_2048_SHA256,
	}
}

// GetPublicKey calls GetPublicKeyFunc if applicable. Otherwise returns the fake key.
func (f *FakeKeyManagementClient) GetPublicKey(ctx context.Context, req *kmspb.GetPublicKeyRequest, opts ...gax.CallOption) (*kmspb.PublicKey, error) {
	if f.GetPublicKeyFunc != nil {
		return f.GetPublicKeyFunc(ctx, req, opts...)
	}
	if f.Key(req.GetName()) == nil {
		return nil, status.Errorf(codes.NotFound, "CryptoKeyVersion %s not found", req.GetName())
	}
	return f.ValidPublicKeyResponse(req.GetName()), nil
}

// AsymmetricDecrypt calls AsymmetricDecryptFunc if applicable. Otherwise
// performs RSA-OAEP-SHA256 decryption with the fake key.
func (f *FakeKeyManagementClient) AsymmetricDecrypt(ctx context.Context, req *kmspb.AsymmetricDecryptRequest, opts ...gax.CallOption) (*kmspb.AsymmetricDecryptResponse, error) {
	if f.AsymmetricDecryptFunc != nil {
		return f.AsymmetricDecryptFunc(ctx, req, opts...)
	}
	key := f.Key(req.GetName())
	if key == nil {
		return nil, status.Errorf(codes.NotFound, "CryptoKeyVersion %s not found", req.GetName())
	}
	if req.GetCiphertextCrc32C() != nil && int64(crc32c(req.GetCiphertext())) != req.GetCiphertextCrc32C().GetValue() {
		return nil, status.Error(codes.InvalidArgument, "ciphertext checksum mismatch")
	}
	plaintext, err := rsa.DecryptOAEP(sha256.New(), nil, key, req.GetCiphertext(), nil)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decryption failed: %v", err)
	}
	return &kmspb.AsymmetricDecryptResponse{
		Plaintext:                plaintext,
		PlaintextCrc32C:          wrapperspb.Int64(int64(crc32c(plaintext))),
		VerifiedCiphertextCrc32C: req.GetCiphertextCrc32C() != nil,
	}, nil
}

// Close is a no-op. Needed to implement the KMS Client interface.
func (f *FakeKeyManagementClient) Close() error {
	return nil
}

// PublicKeyPEM encodes key as a PKIX "PUBLIC KEY" PEM block.
func PublicKeyPEM(key *rsa.PublicKey) string {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		panic(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// PrivateKeyPEM encodes key as a PKCS#1 "RSA PRIVATE KEY" PEM block.
func PrivateKeyPEM(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
}
