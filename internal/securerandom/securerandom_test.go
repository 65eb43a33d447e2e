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

package securerandom

import (
	"bytes"
	"io"
	"testing"
)

func TestReaderFillsBuffer(t *testing.T) {
	for _, n := range []int{0, 1, 32, 4096} {
		buf := make([]byte, n)
		got, err := Reader.Read(buf)
		if err != nil {
			t.Fatalf("Read(%d bytes) failed: %v", n, err)
		}
		if got != n {
			t.Errorf("Read(%d bytes) = %d", n, got)
		}
	}

	a := make([]byte, 32)
	b := make([]byte, 32)
	if _, err := io.ReadFull(Reader, a); err != nil {
		t.Fatal(err)
	}
	if _, err := io.ReadFull(Reader, b); err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Errorf("two reads returned identical bytes")
	}
}
