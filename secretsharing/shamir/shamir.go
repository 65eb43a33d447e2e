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

// Package shamir encapsulates all of the logic needed to perform t-of-n [Shamir
// Secret Sharing] (SSS) on arbitrary-size secrets over GF(2^8). SSS is based on
// the Lagrange interpolation theorem, which states that `k` points are enough to
// uniquely determine a polynomial of degree less than or equal to `k - 1`.
//
// Each byte of the secret is shared independently: it becomes the constant term
// of its own random polynomial, and share `x` carries that polynomial's value
// at `x`.
//
// This scheme is secure under the following assumptions:
//   - The scheme requires a trusted dealer to generate the shares. Participants
//     must trust the dealer with access to the secret and to properly generate the
//     shares.
//   - The scheme assumes a passive adversary which can observe (t - 1) shares
//     without being able to reconstruct the secrets. However, this scheme
//     assumes the adversary isn't allowed to participate in the `reconstruct` step by
//     providing a chosen share.
//     Examples of this attack: https://crypto.stackexchange.com/q/41994/76875
//
// [Combine] interpolates over whatever shares it is given and cannot tell
// whether they meet the threshold of the original split; fewer shares yield a
// well-formed but wrong secret. [Reconstruct] enforces the threshold recorded in
// the split metadata.
//
// [Shamir Secret Sharing]: https://web.mit.edu/6.857/OldStuff/Fall03/ref/Shamir-HowToShareAsecrets.pdf
package shamir

import (
	"fmt"
	"io"

	"github.com/guardianvault/guardian/internal/securerandom"
	"github.com/guardianvault/guardian/secretsharing/internal/gf256"
	"github.com/guardianvault/guardian/secretsharing/secrets"
)

// SplitSecret splits a secret into metadata.NumShares shares where metadata.Threshold
// or more shares can be combined to reconstruct the original secret.
func SplitSecret(metadata secrets.Metadata, secret []byte) (secrets.Split, error) {
	return SplitSecretWithRandom(metadata, secret, securerandom.Reader)
}

// SplitSecretWithRandom is SplitSecret drawing polynomial coefficients from rnd,
// which must be a cryptographically secure source outside of tests.
func SplitSecretWithRandom(metadata secrets.Metadata, secret []byte, rnd io.Reader) (secrets.Split, error) {
	if len(secret) == 0 {
		return secrets.Split{}, secrets.Invalidf("secret must not be empty")
	}
	if err := metadata.Validate(); err != nil {
		return secrets.Split{}, err
	}
	threshold := metadata.Threshold
	numShares := metadata.NumShares

	shares := make([]secrets.Share, numShares)
	for i := range shares {
		shares[i].X = i + 1
		shares[i].Value = make([]byte, len(secret))
	}

	// For each secret byte we build a polynomial of degree `threshold - 1`.
	// The byte is the constant coefficient and every other coefficient
	// is drawn uniformly from the field:
	// secret[b] + R_1 * x^1 + R_2 * X^2 + ... + R_(t-1) * X^(t-1)
	coefficients := make([]gf256.Element, threshold)
	randomness := make([]byte, threshold-1)
	for b, subsecret := range secret {
		if _, err := io.ReadFull(rnd, randomness); err != nil {
			return secrets.Split{}, fmt.Errorf("failed to read random coefficients: %w", err)
		}
		coefficients[0] = gf256.Element(subsecret)
		for i, r := range randomness {
			coefficients[i+1] = gf256.Element(r)
		}
		// shares[0].Value = [ F1(1), F2(1), ..., FL(1) ]
		// shares[1].Value = [ F1(2), F2(2), ..., FL(2) ]
		// shares[N-1].Value = [ F1(N), F2(N), ..., FL(N) ]
		for i := range shares {
			shares[i].Value[b] = byte(evaluatePolynomial(coefficients, gf256.Element(shares[i].X)))
		}
	}
	clear(coefficients)
	clear(randomness)

	return secrets.Split{
		Shares:    shares,
		Metadata:  metadata,
		SecretLen: len(secret),
	}, nil
}

// evaluates a polynomial at `x` where `coefficients` take the form:
// f(x) = c[n-1] * x^(n-1) + c[n-2] * x^(n-2) + ... + c[1] * x^1 + c[0]
func evaluatePolynomial(coefficients []gf256.Element, x gf256.Element) gf256.Element {
	var sum gf256.Element
	for i := len(coefficients) - 1; i > 0; i-- {
		sum = sum.Add(coefficients[i]).Multiply(x)
	}
	return sum.Add(coefficients[0])
}

// Combine recovers a secret from two or more shares of equal length by
// interpolating each byte position at x = 0.
//
// Combine does not know the threshold the shares were split with. Given fewer
// shares than that threshold it returns a secret of the right length that is
// not the original, without error. Use [Reconstruct] when the threshold is known.
//
// Combine will not detect bogus or corrupted shares.
func Combine(shares []secrets.Share) ([]byte, error) {
	if err := validateCombineInput(shares); err != nil {
		return nil, err
	}
	xVals := make([]gf256.Element, len(shares))
	for i, s := range shares {
		xVals[i] = gf256.Element(s.X)
	}
	coefficients, err := lagrangeCoefficients(xVals)
	if err != nil {
		return nil, err
	}
	secretLen := len(shares[0].Value)
	secret := make([]byte, secretLen)
	for b := 0; b < secretLen; b++ {
		// ∑i y[i] * lagrange_coefficient[i]
		var sum gf256.Element
		for i, s := range shares {
			sum = sum.Add(gf256.Element(s.Value[b]).Multiply(coefficients[i]))
		}
		secret[b] = byte(sum)
	}
	return secret, nil
}

// Reconstruct reconstructs the secret from secretSplit.
//
// The number of shares provided must meet the threshold specified when the
// shares were created by [SplitSecret]; only the first Threshold shares are used.
//
// Reconstruct will not detect bogus or corrupted shares.
func Reconstruct(secretSplit secrets.Split) ([]byte, error) {
	md := secretSplit.Metadata
	if err := md.Validate(); err != nil {
		return nil, err
	}
	if len(secretSplit.Shares) < md.Threshold {
		return nil, secrets.Invalidf("not enough shares to reconstruct the secret, need at least %d, got: %d", md.Threshold, len(secretSplit.Shares))
	}
	secret, err := Combine(secretSplit.Shares[:md.Threshold])
	if err != nil {
		return nil, err
	}
	if secretSplit.SecretLen != 0 && secretSplit.SecretLen != len(secret) {
		return nil, secrets.Invalidf("reconstructed secret has length %d, want %d", len(secret), secretSplit.SecretLen)
	}
	return secret, nil
}

// recovers the coefficients to perform lagrange polynomial interpolation at x = 0
// using the x coordinates:
// ∏j={1,n,j≠i} ( x[j] / ( x[j] - x[i] ) )
func lagrangeCoefficients(x []gf256.Element) ([]gf256.Element, error) {
	out := make([]gf256.Element, len(x))
	for i := range x {
		num, den := gf256.Element(1), gf256.Element(1)
		for j := range x {
			if i == j {
				continue
			}
			num = num.Multiply(x[j])
			den = den.Multiply(x[j].Subtract(x[i]))
		}
		c, err := num.Divide(den)
		if err != nil {
			return nil, secrets.Invalidf("all shares should be unique points: %v", err)
		}
		out[i] = c
	}
	return out, nil
}

func validateCombineInput(shares []secrets.Share) error {
	if len(shares) < secrets.MinThreshold {
		return secrets.Invalidf("need at least %d shares to combine, got %d", secrets.MinThreshold, len(shares))
	}
	secretLen := len(shares[0].Value)
	if secretLen == 0 {
		return secrets.Invalidf("empty secret value")
	}
	seen := make(map[int]bool, len(shares))
	for i, s := range shares {
		if s.X < 1 || s.X > secrets.MaxShares {
			return secrets.Invalidf("share %d has x-coordinate %d outside [1, %d]", i, s.X, secrets.MaxShares)
		}
		if seen[s.X] {
			return secrets.Invalidf("share %d repeats x-coordinate %d", i, s.X)
		}
		seen[s.X] = true
		if len(s.Value) != secretLen {
			return secrets.Invalidf("all shares must have the same length: share 0 has %d bytes, share %d has %d", secretLen, i, len(s.Value))
		}
	}
	return nil
}
