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

// Package constants contains policy constants shared between the client
// library and the binaries.
package constants

// NumCustodians is the number of custodians every capsule is distributed to.
const NumCustodians = 5

// Threshold is the number of decrypted shares needed to reconstruct the
// ephemeral key of a capsule.
const Threshold = 3

// DefaultKeyBits is the RSA modulus size of generated keys unless configured otherwise.
const DefaultKeyBits = 4096

// DefaultBackend is the capability backend used when none is configured.
const DefaultBackend = "pgp"

// Version is the current version, displayed via the `version` subcommand and
// sent in the Cloud KMS user agent.
const Version = "0.1.0"
