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

// This file contains test keys for use in client_test.go.
// They are declared in a separate file so that automated tooling does
// not trigger warnings about touching a file with keys in them every time
// a developer tries to modify client_test.go.

package client

const (
	// This is the public half of a 1024-bit RSA key generated explicitly for
	// testing. It is well formed PEM, but not a key any backend accepts for a
	// custodian: it is not an OpenPGP key, and it is too small for rsaenvelope.
	testRSA1024PublicPEM = `-----BEGIN PUBLIC KEY-----
MIGfMA0GCSqGSIb3DQEBAQUAA4GNADCBiQKBgQDUzk2aLRRBhg4Kj596qJ+7zCGO
784A5HQMbCRn3eYd1ZCR+pnkPDs1m1QM+3twHDYuo9EpGjSVduTC0PGzwrc3KLmX
9oYmC36/l5Jj/fKGRaeOfwm1S6Ai3uhXagl5tneuoRKKomviHYLRV7eEzJYbavpU
cc0G2yLntdS66ogLSQIDAQAB
-----END PUBLIC KEY-----`

	// A truncated OpenPGP public key block.
	testTruncatedPGPKey = `-----BEGIN PGP PUBLIC KEY BLOCK-----

mI0EZmZmZgEEAMvF
-----END PGP PUBLIC KEY BLOCK-----`
)
