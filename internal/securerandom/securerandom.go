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

// Package securerandom exposes Tink's CSPRNG as an io.Reader.
package securerandom

import (
	"io"

	"github.com/google/tink/go/subtle/random"
)

// Reader fills buffers from Tink's CSPRNG. Reads never fail short.
var Reader io.Reader = tinkReader{}

type tinkReader struct{}

func (tinkReader) Read(p []byte) (int, error) {
	copy(p, random.GetRandomBytes(uint32(len(p))))
	return len(p), nil
}
