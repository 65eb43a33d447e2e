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

// Package client is the client library for guardian: it seals a message under
// an ephemeral key whose shares are held by custodians, and opens it again
// once enough custodians return their shares.
package client

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	glog "github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/guardianvault/guardian/client/capability"
	"github.com/guardianvault/guardian/client/shares"
	"github.com/guardianvault/guardian/constants"
	"github.com/guardianvault/guardian/secretsharing/secrets"
	"golang.org/x/sync/errgroup"
)

// GuardianClient distributes and reconstructs capsules with a single
// capability backend.
type GuardianClient struct {
	crypto capability.AsymmetricCrypto
	hasher capability.Hasher

	// Maximum number of concurrent share encryptions.
	parallelism int
}

// Option configures a GuardianClient.
type Option func(*GuardianClient)

// WithHasher overrides the share content hash, SHA-256 by default.
func WithHasher(h capability.Hasher) Option {
	return func(c *GuardianClient) { c.hasher = h }
}

// WithParallelism bounds the number of share encryptions run at once. Values
// below 1 run them one at a time.
func WithParallelism(n int) Option {
	return func(c *GuardianClient) { c.parallelism = max(n, 1) }
}

// New returns a GuardianClient using crypto for every key operation.
func New(crypto capability.AsymmetricCrypto, opts ...Option) *GuardianClient {
	c := &GuardianClient{
		crypto:      crypto,
		hasher:      capability.HasherFunc(shares.HashShare),
		parallelism: constants.NumCustodians,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wrapShares encrypts shareTexts[i] to custodians[i]. Every encryption runs to
// completion; if any failed, the lowest failing index is reported and nothing
// else is returned.
func (c *GuardianClient) wrapShares(ctx context.Context, shareTexts []string, custodians []*Custodian) ([]EncryptedShare, error) {
	if len(shareTexts) != len(custodians) {
		return nil, fmt.Errorf("number of shares to wrap (%d) does not match number of custodians (%d)", len(shareTexts), len(custodians))
	}

	wrapped := make([]EncryptedShare, len(custodians))
	errs := make([]error, len(custodians))

	var g errgroup.Group
	g.SetLimit(c.parallelism)
	for i, custodian := range custodians {
		i, custodian := i, custodian
		g.Go(func() error {
			glog.Infof("Wrapping share #%v", i+1)
			share := []byte(shareTexts[i])
			ciphertext, err := c.crypto.Encrypt(ctx, share, custodian.PublicKey)
			if err != nil {
				errs[i] = capability.Wrap(capability.OpEncrypt, err)
				return errs[i]
			}
			wrapped[i] = EncryptedShare{
				Owner:       bytes.Clone(custodian.Identity),
				Ciphertext:  ciphertext,
				ContentHash: c.hasher.Digest(share),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for i, err := range errs {
			if err != nil {
				glog.Warningf("Failed to wrap share #%v: %v", i+1, err)
				return nil, &DistributionError{Index: i, Err: err}
			}
		}
		return nil, err
	}

	return wrapped, nil
}

// validateIdentities checks that every record has a distinct, non-empty
// identity.
func validateIdentities(records []CustodianRecord) error {
	seen := make(map[string]int, len(records))
	for i, record := range records {
		if len(record.Identity) == 0 {
			return secrets.Invalidf("custodian #%d has an empty identity", i)
		}
		if j, ok := seen[string(record.Identity)]; ok {
			return secrets.Invalidf("custodian #%d: identity %v already used by custodian #%d", i, record.Identity, j)
		}
		seen[string(record.Identity)] = i
	}
	return nil
}

// parseCustodians parses every custodian key before any key material exists.
// A key that does not parse is reported as a *DistributionError.
func (c *GuardianClient) parseCustodians(records []CustodianRecord) ([]*Custodian, error) {
	if err := validateIdentities(records); err != nil {
		return nil, err
	}

	custodians := make([]*Custodian, len(records))
	for i, record := range records {
		custodian, err := ParseCustodian(c.crypto, record)
		if err != nil {
			return nil, &DistributionError{Index: i, Err: err}
		}
		if fp, err := capability.Fingerprint(custodian.PublicKey); err == nil && fp != "" {
			glog.Infof("Custodian #%v (%v) key fingerprint %v", i+1, custodian.Identity, fp)
		}
		custodians[i] = custodian
	}
	return custodians, nil
}

// Distribute encrypts message under a fresh ephemeral key pair, splits the
// ephemeral private key into constants.NumCustodians shares of which
// constants.Threshold reconstruct it, and encrypts one share to each custodian
// in records, in order.
//
// Distribute is all or nothing: any custodian failure yields a
// *DistributionError naming that custodian and no capsule.
func (c *GuardianClient) Distribute(ctx context.Context, message []byte, records []CustodianRecord) (*Capsule, error) {
	if len(records) != constants.NumCustodians {
		return nil, secrets.Invalidf("distribution needs exactly %d custodians, got %d", constants.NumCustodians, len(records))
	}

	custodians, err := c.parseCustodians(records)
	if err != nil {
		return nil, err
	}

	glog.Infof("Generating ephemeral key pair")
	keyPair, err := c.crypto.GenerateKeyPair(ctx)
	if err != nil {
		return nil, fmt.Errorf("error generating ephemeral key pair: %w", err)
	}

	encryptedMessage, err := c.crypto.Encrypt(ctx, message, keyPair.Public)
	if err != nil {
		return nil, fmt.Errorf("error encrypting message: %w", err)
	}

	armoredKey, err := keyPair.Private.Armored()
	if err != nil {
		return nil, fmt.Errorf("error serializing ephemeral private key: %w", capability.Wrap(capability.OpGenerateKeyPair, err))
	}
	secret := shares.EncodeSecret(armoredKey)
	shareTexts, err := shares.SplitShares(secret, constants.NumCustodians, constants.Threshold)
	clear(secret)
	if err != nil {
		return nil, fmt.Errorf("error splitting ephemeral private key: %w", err)
	}

	encryptedShares, err := c.wrapShares(ctx, shareTexts, custodians)
	if err != nil {
		return nil, err
	}

	capsule := &Capsule{
		ID:               uuid.NewString(),
		EncryptedMessage: encryptedMessage,
		Shares:           encryptedShares,
	}
	glog.Infof("Distributed capsule %v to %d custodians", capsule.ID, len(encryptedShares))
	return capsule, nil
}

// Reconstruct recovers the ephemeral private key from the first
// constants.Threshold of decryptedShares, in the given order, and uses it to
// decrypt encryptedMessage.
//
// Shares are not validated beyond their encoding; a wrong share makes key
// parsing or decryption fail.
func (c *GuardianClient) Reconstruct(ctx context.Context, encryptedMessage string, decryptedShares []string) ([]byte, error) {
	if len(decryptedShares) < constants.Threshold {
		return nil, &InsufficientSharesError{Got: len(decryptedShares), Need: constants.Threshold}
	}

	selected := make([]string, constants.Threshold)
	for i := range selected {
		selected[i] = strings.TrimSpace(decryptedShares[i])
	}

	secret, err := shares.CombineShares(selected, constants.NumCustodians, constants.Threshold)
	if err != nil {
		return nil, fmt.Errorf("error combining shares: %w", err)
	}
	armoredKey, err := shares.DecodeSecret(secret)
	clear(secret)
	if err != nil {
		return nil, fmt.Errorf("error decoding reconstructed key: %w", err)
	}

	privateKey, err := c.crypto.ParsePrivateKey(armoredKey)
	if err != nil {
		return nil, fmt.Errorf("error parsing reconstructed key: %w", err)
	}

	plaintext, err := c.crypto.Decrypt(ctx, encryptedMessage, privateKey)
	if err != nil {
		return nil, fmt.Errorf("error decrypting message: %w", err)
	}
	return plaintext, nil
}

// UnwrapShare decrypts one custodian's share with that custodian's private key
// and checks it against the share's content hash. It returns the share's wire
// form, ready to be passed to Reconstruct.
func (c *GuardianClient) UnwrapShare(ctx context.Context, share EncryptedShare, privateKey string) (string, error) {
	key, err := c.crypto.ParsePrivateKey(privateKey)
	if err != nil {
		return "", capability.Wrap(capability.OpParsePrivateKey, err)
	}

	plaintext, err := c.crypto.Decrypt(ctx, share.Ciphertext, key)
	if err != nil {
		return "", capability.Wrap(capability.OpDecrypt, err)
	}

	if !bytes.Equal(c.hasher.Digest(plaintext), share.ContentHash) {
		return "", capability.Errorf(capability.OpVerifyShare, "share owned by %v does not have the expected hash", share.Owner)
	}
	return string(plaintext), nil
}
