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

package client

import (
	"fmt"
)

// InsufficientSharesError is returned by Reconstruct when fewer decrypted
// shares than the threshold are supplied.
type InsufficientSharesError struct {
	Got  int
	Need int
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("insufficient shares: got %d, need at least %d", e.Got, e.Need)
}

// DistributionError is returned by Distribute when the key of the custodian at
// Index could not be parsed or used. Err is a *capability.CapabilityError. No
// encrypted shares are produced when it is returned.
type DistributionError struct {
	// Index is the position of the failing custodian in the input, from 0.
	Index int
	Err   error
}

func (e *DistributionError) Error() string {
	return fmt.Sprintf("distribution failed for custodian #%d: %v", e.Index, e.Err)
}

func (e *DistributionError) Unwrap() error {
	return e.Err
}
