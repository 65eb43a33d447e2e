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

// Package secrets contains types for secret sharing. When splitting a secret, a dealer needs
// to provide both the `secret` + `Metadata`. A dealer would then get a `Split`, which contains
// the `Metadata`, the secret shares, and the secret length.
package secrets

import (
	"encoding/hex"
	"fmt"
)

const (
	// MinThreshold is the smallest threshold (and number of shares) a split may use.
	MinThreshold = 2
	// MaxShares is the largest number of shares a split may produce. X
	// coordinates are encoded as a single non-zero byte.
	MaxShares = 255
)

// ValidationError reports invalid input to a split or reconstruction.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid secret sharing input: " + e.Reason
}

// Invalidf returns a *ValidationError with a formatted reason.
func Invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Metadata contains the necessary secret sharing scheme information to split and/or reconstruct a secret.
type Metadata struct {
	NumShares int
	Threshold int
}

// Validate checks 2 <= Threshold <= NumShares <= 255.
func (m Metadata) Validate() error {
	if m.Threshold < MinThreshold {
		return Invalidf("threshold must be at least %d, got %d", MinThreshold, m.Threshold)
	}
	if m.Threshold > m.NumShares {
		return Invalidf("threshold (%d) must not exceed the number of shares (%d)", m.Threshold, m.NumShares)
	}
	if m.NumShares > MaxShares {
		return Invalidf("number of shares must be at most %d, got %d", MaxShares, m.NumShares)
	}
	return nil
}

// Split represents a secret split into shares alongside the metadata needed to reconstruct it.
type Split struct {
	Metadata Metadata
	Shares   []Share
	// The length of the original split secret in bytes.
	SecretLen int
}

// Share represents one share of a shared secret without any metadata.
type Share struct {
	// Value holds one field element per byte of the secret, in secret order.
	Value []byte
	X     int
}

// Encode returns the wire form of the share: lowercase hex of the X
// coordinate byte followed by Value.
func (s Share) Encode() (string, error) {
	if s.X < 1 || s.X > MaxShares {
		return "", Invalidf("share x-coordinate %d out of range [1, %d]", s.X, MaxShares)
	}
	b := make([]byte, 0, len(s.Value)+1)
	b = append(b, byte(s.X))
	b = append(b, s.Value...)
	return hex.EncodeToString(b), nil
}

// DecodeShare parses the wire form produced by Share.Encode.
func DecodeShare(encoded string) (Share, error) {
	b, err := hex.DecodeString(encoded)
	if err != nil {
		return Share{}, Invalidf("share is not valid hex: %v", err)
	}
	if len(b) < 2 {
		return Share{}, Invalidf("share must hold an x-coordinate and at least one value byte, got %d bytes", len(b))
	}
	if b[0] == 0 {
		return Share{}, Invalidf("share x-coordinate must not be zero")
	}
	return Share{X: int(b[0]), Value: b[1:]}, nil
}

// EncodeShares encodes every share of the split, in order.
func (s Split) EncodeShares() ([]string, error) {
	out := make([]string, 0, len(s.Shares))
	for i, share := range s.Shares {
		enc, err := share.Encode()
		if err != nil {
			return nil, fmt.Errorf("share %d: %w", i, err)
		}
		out = append(out, enc)
	}
	return out, nil
}

// DecodeShares decodes a set of wire-form shares, in order.
func DecodeShares(encoded []string) ([]Share, error) {
	out := make([]Share, 0, len(encoded))
	for i, e := range encoded {
		share, err := DecodeShare(e)
		if err != nil {
			return nil, fmt.Errorf("share %d: %w", i, err)
		}
		out = append(out, share)
	}
	return out, nil
}
