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

package secrets

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMetadataValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		md      Metadata
		wantErr bool
	}{
		{name: "minimum", md: Metadata{NumShares: 2, Threshold: 2}},
		{name: "policy", md: Metadata{NumShares: 5, Threshold: 3}},
		{name: "maximum", md: Metadata{NumShares: 255, Threshold: 255}},
		{name: "threshold one", md: Metadata{NumShares: 5, Threshold: 1}, wantErr: true},
		{name: "threshold zero", md: Metadata{NumShares: 5, Threshold: 0}, wantErr: true},
		{name: "threshold above shares", md: Metadata{NumShares: 3, Threshold: 4}, wantErr: true},
		{name: "too many shares", md: Metadata{NumShares: 256, Threshold: 3}, wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.md.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
			var vErr *ValidationError
			if err != nil && !errors.As(err, &vErr) {
				t.Errorf("Validate() err = %T, want *ValidationError", err)
			}
		})
	}
}

func TestShareEncodeDecode(t *testing.T) {
	share := Share{X: 3, Value: []byte{0x00, 0xab, 0xff}}
	enc, err := share.Encode()
	if err != nil {
		t.Fatalf("Encode() err = %v", err)
	}
	if want := "0300abff"; enc != want {
		t.Errorf("Encode() = %q, want %q", enc, want)
	}
	got, err := DecodeShare(enc)
	if err != nil {
		t.Fatalf("DecodeShare(%q) err = %v", enc, err)
	}
	if diff := cmp.Diff(share, got); diff != "" {
		t.Errorf("DecodeShare(%q) diff (-want +got):\n%s", enc, diff)
	}
}

func TestDecodeShareAcceptsUppercase(t *testing.T) {
	got, err := DecodeShare("FFAB")
	if err != nil {
		t.Fatal(err)
	}
	if got.X != 255 || len(got.Value) != 1 || got.Value[0] != 0xab {
		t.Errorf("DecodeShare(FFAB) = %+v", got)
	}
}

func TestShareEncodeRejectsBadX(t *testing.T) {
	for _, x := range []int{0, -1, 256} {
		if _, err := (Share{X: x, Value: []byte{1}}).Encode(); err == nil {
			t.Errorf("Encode() with x=%d err = nil, want error", x)
		}
	}
}

func TestDecodeShareFails(t *testing.T) {
	for _, tc := range []struct {
		name    string
		encoded string
		substr  string
	}{
		{name: "not hex", encoded: "zz01", substr: "hex"},
		{name: "odd length", encoded: "010", substr: "hex"},
		{name: "empty", encoded: "", substr: "at least one value byte"},
		{name: "x only", encoded: "01", substr: "at least one value byte"},
		{name: "zero x", encoded: "00ab", substr: "zero"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeShare(tc.encoded)
			if err == nil {
				t.Fatalf("DecodeShare(%q) err = nil, want error", tc.encoded)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("DecodeShare(%q) err = %T, want *ValidationError", tc.encoded, err)
			}
			if !strings.Contains(err.Error(), tc.substr) {
				t.Errorf("DecodeShare(%q) err = %q, want substring %q", tc.encoded, err, tc.substr)
			}
		})
	}
}

func TestEncodeDecodeShares(t *testing.T) {
	split := Split{
		Metadata:  Metadata{NumShares: 2, Threshold: 2},
		SecretLen: 2,
		Shares: []Share{
			{X: 1, Value: []byte{1, 2}},
			{X: 2, Value: []byte{3, 4}},
		},
	}
	enc, err := split.EncodeShares()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"010102", "020304"}, enc); diff != "" {
		t.Errorf("EncodeShares() diff (-want +got):\n%s", diff)
	}
	dec, err := DecodeShares(enc)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(split.Shares, dec); diff != "" {
		t.Errorf("DecodeShares() diff (-want +got):\n%s", diff)
	}
	if _, err := DecodeShares([]string{"010102", "nothex"}); err == nil || !strings.Contains(err.Error(), "share 1") {
		t.Errorf("DecodeShares() err = %v, want error naming share 1", err)
	}
}
