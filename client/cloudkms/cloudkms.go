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

// Package cloudkms contains utilities for using custodian keys held in Cloud KMS.
package cloudkms

import (
	"context"
	"fmt"
	"hash/crc32"
	"strings"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	wrapperspb "google.golang.org/protobuf/types/known/wrapperspb"
)

// KeyURIPrefix marks a key reference as a Cloud KMS crypto key version name.
const KeyURIPrefix = "gcp-kms://"

// Client defines the subset of the Cloud KMS client used for custodian keys.
type Client interface {
	GetPublicKey(context.Context, *kmspb.GetPublicKeyRequest, ...gax.CallOption) (*kmspb.PublicKey, error)
	AsymmetricDecrypt(context.Context, *kmspb.AsymmetricDecryptRequest, ...gax.CallOption) (*kmspb.AsymmetricDecryptResponse, error)
	Close() error
}

func crc32c(data []byte) uint32 {
	t := crc32.MakeTable(crc32.Castagnoli)
	return crc32.Checksum(data, t)
}

// IsKeyURI reports whether s names a Cloud KMS key.
func IsKeyURI(s string) bool {
	return strings.HasPrefix(s, KeyURIPrefix)
}

// KeyName strips the gcp-kms:// prefix from uri.
func KeyName(uri string) (string, error) {
	if !IsKeyURI(uri) {
		return "", fmt.Errorf("%q is not a Cloud KMS key URI", uri)
	}
	name := strings.TrimPrefix(uri, KeyURIPrefix)
	if !strings.Contains(name, "/cryptoKeyVersions/") {
		return "", fmt.Errorf("%q does not name a crypto key version", uri)
	}
	return name, nil
}

func supportedAlgorithm(alg kmspb.CryptoKeyVersion_CryptoKeyVersionAlgorithm) bool {
	switch alg {
	case kmspb.CryptoKeyVersion_RSA_DECRYPT_OAEP_2048_SHA256,
		kmspb.CryptoKeyVersion_RSA_DECRYPT_OAEP_3072_SHA256,
		kmspb.CryptoKeyVersion_RSA_DECRYPT_OAEP_4096_SHA256:
		return true
	default:
		return false
	}
}

func describe(keyName string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("key %v not found: %w", keyName, err)
	case codes.PermissionDenied:
		return fmt.Errorf("permission denied for key %v: %w", keyName, err)
	default:
		return fmt.Errorf("calling Cloud KMS for key %v: %w", keyName, err)
	}
}

// PublicKeyPEM fetches the PEM encoded public key of an RSA-OAEP-SHA256
// decryption key version.
func PublicKeyPEM(ctx context.Context, client Client, keyName string) (string, error) {
	if client == nil {
		return "", fmt.Errorf("nil client specified")
	}
	result, err := client.GetPublicKey(ctx, &kmspb.GetPublicKeyRequest{Name: keyName})
	if err != nil {
		return "", describe(keyName, err)
	}
	if result.GetName() != keyName {
		return "", fmt.Errorf("GetPublicKey: request corrupted in-transit")
	}
	if result.GetPemCrc32C() == nil || int64(crc32c([]byte(result.GetPem()))) != result.GetPemCrc32C().GetValue() {
		return "", fmt.Errorf("GetPublicKey: response corrupted in-transit")
	}
	if !supportedAlgorithm(result.GetAlgorithm()) {
		return "", fmt.Errorf("key %v has algorithm %v, want an RSA-OAEP SHA-256 decryption key", keyName, result.GetAlgorithm())
	}
	return result.GetPem(), nil
}

// DecryptOpts holds the parameters of an asymmetric decryption.
type DecryptOpts struct {
	Ciphertext []byte
	KeyName    string
	RPCOpts    []gax.CallOption
}

// Decrypt uses a KMS client to decrypt RSA-OAEP ciphertext with a key held in Cloud KMS.
func Decrypt(ctx context.Context, client Client, opts DecryptOpts) ([]byte, error) {
	if client == nil {
		return nil, fmt.Errorf("nil client specified")
	}
	req := &kmspb.AsymmetricDecryptRequest{
		Name:             opts.KeyName,
		Ciphertext:       opts.Ciphertext,
		CiphertextCrc32C: wrapperspb.Int64(int64(crc32c(opts.Ciphertext))),
	}

	result, err := client.AsymmetricDecrypt(ctx, req, opts.RPCOpts...)
	if err != nil {
		return nil, describe(opts.KeyName, err)
	}

	if !result.GetVerifiedCiphertextCrc32C() {
		return nil, fmt.Errorf("AsymmetricDecrypt: request corrupted in-transit")
	}
	if result.GetPlaintextCrc32C() == nil || int64(crc32c(result.GetPlaintext())) != result.GetPlaintextCrc32C().GetValue() {
		return nil, fmt.Errorf("AsymmetricDecrypt: response corrupted in-transit")
	}
	return result.GetPlaintext(), nil
}

// ClientFactory manages singleton instances of KMS Clients mapped to JSON credentials.
type ClientFactory struct {
	CredsMap map[string]Client
	Version  string

	newKMSClient func(context.Context, ...option.ClientOption) (*kms.KeyManagementClient, error)
}

// NewClientFactory initializes a ClientFactory with the provided version.
func NewClientFactory(version string) *ClientFactory {
	return &ClientFactory{
		CredsMap:     make(map[string]Client),
		Version:      version,
		newKMSClient: kms.NewKeyManagementClient,
	}
}

func (m *ClientFactory) createClient(ctx context.Context, credentials string) (Client, error) {
	// Set user agent for Cloud KMS API calls.
	ua := "guardian/"
	if m.Version != "" {
		ua += m.Version
	} else {
		ua += "dev"
	}

	opts := []option.ClientOption{option.WithUserAgent(ua)}

	// If credentials were specified, include them in the options.
	if len(credentials) != 0 {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentials)))
	}

	return m.newKMSClient(ctx, opts...)
}

// Client returns a KMS Client initialized with the provided credentials. If a client
// with these credentials already exists, it returns that.
func (m *ClientFactory) Client(ctx context.Context, credentials string) (Client, error) {
	if m.CredsMap == nil {
		m.CredsMap = make(map[string]Client)
	}
	client, ok := m.CredsMap[credentials]

	if !ok {
		var err error
		client, err = m.createClient(ctx, credentials)
		if err != nil {
			return nil, fmt.Errorf("error creating new KMS client: %v", err)
		}

		m.CredsMap[credentials] = client
	}

	return client, nil
}

// Close iterates through all the clients in the map and closes them.
func (m *ClientFactory) Close() error {
	for _, client := range m.CredsMap {
		if err := client.Close(); err != nil {
			return err
		}
	}
	return nil
}
