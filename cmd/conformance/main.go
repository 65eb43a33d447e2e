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


// Binary to run the guardian protocol properties against a capability backend.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"flag"
	"github.com/alecthomas/colour"
	"github.com/guardianvault/guardian/client"
	"github.com/guardianvault/guardian/client/capability"
	"github.com/guardianvault/guardian/client/shares"
	"github.com/guardianvault/guardian/config"
	"github.com/guardianvault/guardian/constants"
	"github.com/guardianvault/guardian/secretsharing/secrets"
	"github.com/guardianvault/guardian/secretsharing/shamir"
)

var (
	backendName = flag.String("backend", config.BackendTink, "Capability backend to check: pgp, tink or rsa.")
	keyBits     = flag.Int("key-bits", 2048, "RSA key size for the pgp and rsa backends.")
)

const message = "conformance message"

type custodian struct {
	record     client.CustodianRecord
	privateKey string
}

// fixture is a distributed capsule shared by the protocol checks.
type fixture struct {
	crypto     capability.AsymmetricCrypto
	client     *client.GuardianClient
	custodians []custodian
	capsule    *client.Capsule
}

func newFixture(ctx context.Context, crypto capability.AsymmetricCrypto) (*fixture, error) {
	fx := &fixture{crypto: crypto, client: client.New(crypto)}
	for i := 0; i < constants.NumCustodians; i++ {
		kp, err := crypto.GenerateKeyPair(ctx)
		if err != nil {
			return nil, err
		}
		pub, err := kp.Public.Armored()
		if err != nil {
			return nil, err
		}
		priv, err := kp.Private.Armored()
		if err != nil {
			return nil, err
		}
		fx.custodians = append(fx.custodians, custodian{
			record:     client.CustodianRecord{Identity: client.HexBytes{byte(i + 1)}, PublicKey: pub},
			privateKey: priv,
		})
	}

	capsule, err := fx.client.Distribute(ctx, []byte(message), fx.records())
	if err != nil {
		return nil, err
	}
	fx.capsule = capsule
	return fx, nil
}

func (fx *fixture) records() []client.CustodianRecord {
	records := make([]client.CustodianRecord, len(fx.custodians))
	for i, c := range fx.custodians {
		records[i] = c.record
	}
	return records
}

func (fx *fixture) unwrapAll(ctx context.Context) ([]string, error) {
	out := make([]string, len(fx.custodians))
	for i, c := range fx.custodians {
		share, ok := client.FindShare(fx.capsule, c.record.Identity)
		if !ok {
			return nil, fmt.Errorf("no share for custodian #%d", i)
		}
		text, err := fx.client.UnwrapShare(ctx, share, c.privateKey)
		if err != nil {
			return nil, err
		}
		if !shares.ValidateShare([]byte(text), share.ContentHash) {
			return nil, fmt.Errorf("share #%d does not match its content hash", i)
		}
		out[i] = text
	}
	return out, nil
}

type conformanceTest struct {
	testName string
	run      func(ctx context.Context, fx *fixture) error
}

func checkThresholdSubsets(context.Context, *fixture) error {
	secret := []byte("hello-secret-key")
	split, err := shamir.SplitSecret(secrets.Metadata{NumShares: constants.NumCustodians, Threshold: constants.Threshold}, secret)
	if err != nil {
		return err
	}
	n := len(split.Shares)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				got, err := shamir.Combine([]secrets.Share{split.Shares[k], split.Shares[i], split.Shares[j]})
				if err != nil {
					return err
				}
				if !bytes.Equal(got, secret) {
					return fmt.Errorf("shares {%d,%d,%d} combined to the wrong secret", i, j, k)
				}
			}
		}
	}
	return nil
}

func checkBelowThresholdCombine(context.Context, *fixture) error {
	secret := []byte("hello-secret-key")
	split, err := shamir.SplitSecret(secrets.Metadata{NumShares: constants.NumCustodians, Threshold: constants.Threshold}, secret)
	if err != nil {
		return err
	}
	under := split
	under.Shares = split.Shares[:constants.Threshold-1]
	if _, err := shamir.Reconstruct(under); err == nil {
		return errors.New("Reconstruct accepted fewer shares than the threshold")
	}
	got, err := shamir.Combine(split.Shares[:constants.Threshold-1])
	if err != nil {
		return err
	}
	if bytes.Equal(got, secret) {
		return errors.New("fewer shares than the threshold recovered the secret")
	}
	return nil
}

func checkRoundTrip(ctx context.Context, fx *fixture) error {
	decrypted, err := fx.unwrapAll(ctx)
	if err != nil {
		return err
	}
	got, err := fx.client.Reconstruct(ctx, fx.capsule.EncryptedMessage, []string{decrypted[4], decrypted[0], decrypted[2]})
	if err != nil {
		return err
	}
	if string(got) != message {
		return fmt.Errorf("reconstructed %q, want %q", got, message)
	}
	return nil
}

func checkInsufficientShares(ctx context.Context, fx *fixture) error {
	decrypted, err := fx.unwrapAll(ctx)
	if err != nil {
		return err
	}
	_, err = fx.client.Reconstruct(ctx, fx.capsule.EncryptedMessage, decrypted[:constants.Threshold-1])
	var insufficient *client.InsufficientSharesError
	if !errors.As(err, &insufficient) {
		return fmt.Errorf("got %v, want InsufficientSharesError", err)
	}
	return nil
}

func checkMalformedCustodianKey(ctx context.Context, fx *fixture) error {
	records := fx.records()
	records[2].PublicKey = "not a key"
	capsule, err := fx.client.Distribute(ctx, []byte(message), records)
	var distErr *client.DistributionError
	if capsule != nil || !errors.As(err, &distErr) || distErr.Index != 2 {
		return fmt.Errorf("got %v, want DistributionError for custodian #2", err)
	}
	return nil
}

func checkTamperedHash(ctx context.Context, fx *fixture) error {
	share := fx.capsule.Shares[0]
	share.ContentHash = fx.capsule.Shares[1].ContentHash
	_, err := fx.client.UnwrapShare(ctx, share, fx.custodians[0].privateKey)
	var capErr *capability.CapabilityError
	if !errors.As(err, &capErr) || capErr.Op != capability.OpVerifyShare {
		return fmt.Errorf("got %v, want share verification error", err)
	}
	return nil
}

func checkWrongCustodian(ctx context.Context, fx *fixture) error {
	if _, err := fx.client.UnwrapShare(ctx, fx.capsule.Shares[0], fx.custodians[1].privateKey); err == nil {
		return errors.New("custodian #1 unwrapped the share of custodian #0")
	}
	return nil
}

func main() {
	flag.Parse()
	ctx := context.Background()

	cfg := &config.Config{Backend: *backendName, KeyBits: *keyBits}
	crypto, err := cfg.Crypto(nil)
	if err != nil {
		colour.Printf("^1%v^R\n", err)
		os.Exit(1)
	}

	fmt.Printf("Distributing a capsule with the %v backend...\n", *backendName)
	fx, err := newFixture(ctx, crypto)
	if err != nil {
		colour.Printf("^1 - Distribution failed: %v^R\n", err)
		os.Exit(1)
	}

	testCases := []conformanceTest{
		{testName: "Every threshold subset recovers the secret", run: checkThresholdSubsets},
		{testName: "Fewer shares than the threshold do not recover the secret", run: checkBelowThresholdCombine},
		{testName: "Unwrapped shares reconstruct the message", run: checkRoundTrip},
		{testName: "Reconstruction rejects too few shares", run: checkInsufficientShares},
		{testName: "Distribution names the custodian with a malformed key", run: checkMalformedCustodianKey},
		{testName: "Unwrapping detects a tampered content hash", run: checkTamperedHash},
		{testName: "A custodian cannot unwrap another custodian's share", run: checkWrongCustodian},
	}

	failed := 0
	for _, testCase := range testCases {
		if err := testCase.run(ctx, fx); err != nil {
			failed++
			colour.Printf("^1 - %v: %v^R\n", testCase.testName, err)
		} else {
			colour.Printf("^2 - %v^R\n", testCase.testName)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}
