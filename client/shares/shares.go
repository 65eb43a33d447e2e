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

// Package shares contains functions for processing ephemeral key shares.
package shares

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/guardianvault/guardian/secretsharing/secrets"
	"github.com/guardianvault/guardian/secretsharing/shamir"
)

// HashShare performs a SHA-256 hash on the provided share text.
func HashShare(share []byte) []byte {
	hash := sha256.Sum256(share)
	return hash[:]
}

// ValidateShare performs HashShare on the provided share, then returns whether
// the result is equal to the provided hash.
func ValidateShare(share []byte, expectedHash []byte) bool {
	actualHash := HashShare(share)
	return bytes.Equal(actualHash, expectedHash)
}

// EncodeSecret turns armored private key text into the secret that gets split:
// the bytes of the lowercase hex encoding of the key text.
func EncodeSecret(armoredKey string) []byte {
	return []byte(hex.EncodeToString([]byte(armoredKey)))
}

// DecodeSecret reverses EncodeSecret.
func DecodeSecret(secret []byte) (string, error) {
	key, err := hex.DecodeString(string(secret))
	if err != nil {
		return "", fmt.Errorf("reconstructed secret is not hex encoded key text: %w", err)
	}
	return string(key), nil
}

// SplitShares splits secret into numShares shares, any threshold of which
// recombine to it, and returns them in wire form.
func SplitShares(secret []byte, numShares, threshold int) ([]string, error) {
	md := secrets.Metadata{
		NumShares: numShares,
		Threshold: threshold,
	}
	split, err := shamir.SplitSecret(md, secret)
	if err != nil {
		return nil, fmt.Errorf("error splitting secret: %w", err)
	}

	// Validate the returned data.
	if split.SecretLen != len(secret) {
		return nil, fmt.Errorf("split indicates secret has length %v, expected %v", split.SecretLen, len(secret))
	}

	return split.EncodeShares()
}

// CombineShares takes wire-form shares and reconstitutes the original secret
// from the first threshold of them. Note that this does not guarantee the
// shares are correct (SSS will succeed at "reconstructing" data from even
// faulty shares), so integrity checks are done separately.
func CombineShares(shares []string, numShares, threshold int) ([]byte, error) {
	if len(shares) < threshold {
		return nil, secrets.Invalidf("got %d shares, need at least %d", len(shares), threshold)
	}
	secretShares, err := secrets.DecodeShares(shares[:threshold])
	if err != nil {
		return nil, err
	}

	split := secrets.Split{
		Metadata: secrets.Metadata{
			NumShares: numShares,
			Threshold: threshold,
		},
		Shares: secretShares,
	}

	return shamir.Reconstruct(split)
}
