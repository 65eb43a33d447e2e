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

package rsaenvelope

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/google/go-cmp/cmp"
	"github.com/googleapis/gax-go/v2"
	"github.com/guardianvault/guardian/client/capability"
	"github.com/guardianvault/guardian/client/testutil"
	wrapperspb "google.golang.org/protobuf/types/known/wrapperspb"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func localKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("rsa.GenerateKey() failed: %v", err)
		}
	})
	return testKey
}

type otherKey struct{}

func (otherKey) Armored() (string, error) { return "", nil }

func wantCapabilityError(t *testing.T, err error, op capability.Op) {
	t.Helper()
	var capErr *capability.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("got error %v, want *capability.CapabilityError", err)
	}
	if capErr.Op != op {
		t.Errorf("CapabilityError.Op = %q, want %q", capErr.Op, op)
	}
}

func TestLocalKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(2048)
	key := localKey(t)

	pub, err := c.ParsePublicKey(testutil.PublicKeyPEM(&key.PublicKey))
	if err != nil {
		t.Fatalf("ParsePublicKey() failed: %v", err)
	}
	priv, err := c.ParsePrivateKey(testutil.PrivateKeyPEM(key))
	if err != nil {
		t.Fatalf("ParsePrivateKey() failed: %v", err)
	}

	for _, plaintext := range [][]byte{{}, []byte("share"), make([]byte, 10000)} {
		ct, err := c.Encrypt(ctx, plaintext, pub)
		if err != nil {
			t.Fatalf("Encrypt() failed: %v", err)
		}
		if !strings.HasPrefix(ct, "-----BEGIN "+messageType+"-----") {
			t.Errorf("ciphertext is not PEM armored:\n%s", ct)
		}
		got, err := c.Decrypt(ctx, ct, priv)
		if err != nil {
			t.Fatalf("Decrypt() failed: %v", err)
		}
		if diff := cmp.Diff(plaintext, got); diff != "" {
			t.Errorf("Decrypt() mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestGeneratedKeysRoundTripThroughArmor(t *testing.T) {
	ctx := context.Background()
	c := New(2048)
	kp, err := c.GenerateKeyPair(ctx)
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	pubText, err := kp.Public.Armored()
	if err != nil {
		t.Fatal(err)
	}
	privText, err := kp.Private.Armored()
	if err != nil {
		t.Fatal(err)
	}
	pub, err := c.ParsePublicKey(pubText)
	if err != nil {
		t.Fatalf("ParsePublicKey(generated) failed: %v", err)
	}
	priv, err := c.ParsePrivateKey(privText)
	if err != nil {
		t.Fatalf("ParsePrivateKey(generated) failed: %v", err)
	}
	ct, err := c.Encrypt(ctx, []byte("message"), pub)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Decrypt(ctx, ct, priv)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "message" {
		t.Errorf("Decrypt() = %q, want %q", got, "message")
	}
}

func TestGenerateKeyPairRejectsSmallKeys(t *testing.T) {
	_, err := New(1024).GenerateKeyPair(context.Background())
	wantCapabilityError(t, err, capability.OpGenerateKeyPair)
}

func TestFingerprint(t *testing.T) {
	key := localKey(t)
	pub, err := New(2048).ParsePublicKey(testutil.PublicKeyPEM(&key.PublicKey))
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	sha := sha256.Sum256(der)
	want := base64.StdEncoding.EncodeToString(sha[:])

	got, err := pub.(*PublicKey).Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Fingerprint() = %v, want %v", got, want)
	}
}

func TestCloudKMSKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	fakeKMSClient := &testutil.FakeKeyManagementClient{}
	c := New(2048, WithKMSClient(fakeKMSClient))

	pub, err := c.ParsePublicKey(fakeKMSClient.PublicKeyPEM(testutil.TestKeyName))
	if err != nil {
		t.Fatalf("ParsePublicKey() failed: %v", err)
	}
	priv, err := c.ParsePrivateKey(testutil.TestKeyURI)
	if err != nil {
		t.Fatalf("ParsePrivateKey(%q) failed: %v", testutil.TestKeyURI, err)
	}
	if armored, _ := priv.Armored(); armored != testutil.TestKeyURI {
		t.Errorf("Armored() = %q, want %q", armored, testutil.TestKeyURI)
	}

	ct, err := c.Encrypt(ctx, []byte("custodian share"), pub)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Decrypt(ctx, ct, priv)
	if err != nil {
		t.Fatalf("Decrypt() with Cloud KMS key failed: %v", err)
	}
	if string(got) != "custodian share" {
		t.Errorf("Decrypt() = %q, want %q", got, "custodian share")
	}
}

func TestCloudKMSDecryptFails(t *testing.T) {
	ctx := context.Background()
	fakeKMSClient := &testutil.FakeKeyManagementClient{}
	c := New(2048, WithKMSClient(fakeKMSClient))
	pub, err := c.ParsePublicKey(fakeKMSClient.PublicKeyPEM(testutil.TestKeyName))
	if err != nil {
		t.Fatal(err)
	}
	ct, err := c.Encrypt(ctx, []byte("custodian share"), pub)
	if err != nil {
		t.Fatal(err)
	}

	corrupting := &testutil.FakeKeyManagementClient{
		AsymmetricDecryptFunc: func(ctx context.Context, req *kmspb.AsymmetricDecryptRequest, opts ...gax.CallOption) (*kmspb.AsymmetricDecryptResponse, error) {
			resp, err := fakeKMSClient.AsymmetricDecrypt(ctx, req, opts...)
			if err != nil {
				return nil, err
			}
			resp.PlaintextCrc32C = wrapperspb.Int64(10)
			return resp, nil
		},
	}

	for _, tc := range []struct {
		name   string
		crypto *Crypto
		key    string
	}{
		{name: "no client", crypto: New(2048), key: testutil.TestKeyURI},
		{name: "other key", crypto: c, key: testutil.TestHSMKeyURI},
		{name: "missing key", crypto: c, key: testutil.TestMissingKeyURI},
		{name: "corrupted response", crypto: New(2048, WithKMSClient(corrupting)), key: testutil.TestKeyURI},
	} {
		t.Run(tc.name, func(t *testing.T) {
			priv, err := tc.crypto.ParsePrivateKey(tc.key)
			if err != nil {
				t.Fatal(err)
			}
			_, err = tc.crypto.Decrypt(ctx, ct, priv)
			wantCapabilityError(t, err, capability.OpDecrypt)
		})
	}
}

func TestParsePublicKeyFails(t *testing.T) {
	c := New(2048)
	small, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	ecDER, err := x509.MarshalPKIXPublicKey(&ec.PublicKey)
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "garbage", text: "not a key"},
		{name: "private key", text: testutil.PrivateKeyPEM(localKey(t))},
		{name: "small key", text: testutil.PublicKeyPEM(&small.PublicKey)},
		{name: "ecdsa key", text: string(pem.EncodeToMemory(&pem.Block{Type: publicKeyType, Bytes: ecDER}))},
		{name: "bad der", text: string(pem.EncodeToMemory(&pem.Block{Type: publicKeyType, Bytes: []byte{1, 2, 3}}))},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.ParsePublicKey(tc.text)
			wantCapabilityError(t, err, capability.OpParsePublicKey)
		})
	}
}

func TestParsePrivateKeyFails(t *testing.T) {
	c := New(2048)
	for _, text := range []string{
		"",
		testutil.PublicKeyPEM(&localKey(t).PublicKey),
		"gcp-kms://projects/p/locations/l/keyRings/r/cryptoKeys/k",
		string(pem.EncodeToMemory(&pem.Block{Type: privateKeyType, Bytes: []byte{1, 2, 3}})),
	} {
		_, err := c.ParsePrivateKey(text)
		wantCapabilityError(t, err, capability.OpParsePrivateKey)
	}
}

func TestDecryptMalformedEnvelopeFails(t *testing.T) {
	ctx := context.Background()
	c := New(2048)
	key := localKey(t)
	pub, err := c.ParsePublicKey(testutil.PublicKeyPEM(&key.PublicKey))
	if err != nil {
		t.Fatal(err)
	}
	priv, err := c.ParsePrivateKey(testutil.PrivateKeyPEM(key))
	if err != nil {
		t.Fatal(err)
	}
	ct, err := c.Encrypt(ctx, []byte("payload"), pub)
	if err != nil {
		t.Fatal(err)
	}
	block, _ := pem.Decode([]byte(ct))
	tampered := append([]byte(nil), block.Bytes...)
	tampered[len(tampered)-1] ^= 0x01
	truncated := block.Bytes[:100]

	for _, tc := range []struct {
		name string
		ct   string
	}{
		{name: "not pem", ct: "payload"},
		{name: "wrong type", ct: testutil.PublicKeyPEM(&key.PublicKey)},
		{name: "tampered", ct: string(pem.EncodeToMemory(&pem.Block{Type: messageType, Bytes: tampered}))},
		{name: "truncated", ct: string(pem.EncodeToMemory(&pem.Block{Type: messageType, Bytes: truncated}))},
		{name: "one byte", ct: string(pem.EncodeToMemory(&pem.Block{Type: messageType, Bytes: []byte{0}}))},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Decrypt(ctx, tc.ct, priv)
			wantCapabilityError(t, err, capability.OpDecrypt)
		})
	}
}

func TestForeignKeysAreRejected(t *testing.T) {
	ctx := context.Background()
	c := New(2048)
	_, err := c.Encrypt(ctx, []byte("x"), otherKey{})
	wantCapabilityError(t, err, capability.OpEncrypt)

	pub, err := c.ParsePublicKey(testutil.PublicKeyPEM(&localKey(t).PublicKey))
	if err != nil {
		t.Fatal(err)
	}
	ct, err := c.Encrypt(ctx, []byte("x"), pub)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Decrypt(ctx, ct, otherKey{})
	wantCapabilityError(t, err, capability.OpDecrypt)
}

func TestAeadDecryptFailsForNonmatchingAAD(t *testing.T) {
	key := make([]byte, dataKeyBytes)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	ct, err := aeadEncrypt(key, []byte("Plaintext for testing only."), []byte("AAD for encrypt testing only."))
	if err != nil {
		t.Fatalf("aeadEncrypt failed with error %v", err)
	}
	if _, err := aeadDecrypt(key, ct, []byte("AAD for decrypt testing only.")); err == nil {
		t.Error("aeadDecrypt expected to return error but did not.")
	}
}
