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

// Package gf256 implements arithmetic in the field GF(2^8) using
// exponent and logarithm tables.
//
// Every byte value is a field element, so secrets can be shared one byte at a
// time without arbitrary-precision arithmetic.
package gf256

import (
	"errors"
	"sync"
)

const (
	// irreducible polynomial (x^8 + x^4 + x^3 + x + 1), the AES field.
	irreduciblePolynomial = 0x11B

	// generator is (x + 1). Unlike 0x02, it generates the whole multiplicative
	// group modulo irreduciblePolynomial.
	generator = 0x03

	// order of the multiplicative group.
	order = 255
)

// ErrDivideByZero is returned when dividing by the zero element.
var ErrDivideByZero = errors.New("gf256: division by zero")

// Element is an element of GF(2^8).
type Element byte

type tables struct {
	// exp is doubled so that log sums never need a modular reduction.
	exp [2 * order]byte
	log [256]byte
}

var (
	tablesOnce sync.Once
	fieldTable *tables
)

// lookup returns the process-wide tables, building them on first use.
// The tables are never written after the sync.Once completes.
func lookup() *tables {
	tablesOnce.Do(func() {
		t := &tables{}
		x := 1
		for i := 0; i < order; i++ {
			t.exp[i] = byte(x)
			t.exp[i+order] = byte(x)
			t.log[x] = byte(i)
			x = timesGenerator(x)
		}
		fieldTable = t
	})
	return fieldTable
}

// timesGenerator multiplies x by (x + 1) without the tables: x*2 + x,
// reduced by irreduciblePolynomial when the result leaves 8 bits.
func timesGenerator(x int) int {
	x ^= x << 1
	if x&0x100 != 0 {
		x ^= irreduciblePolynomial
	}
	return x
}

// Add element `a` and returns a new element in GF(2^8).
func (e Element) Add(a Element) Element {
	return e ^ a
}

// Subtract element `a` and returns a new element in GF(2^8). Addition and
// subtraction are the same operation (xor) in characteristic 2.
func (e Element) Subtract(a Element) Element {
	return e.Add(a)
}

// Multiply by element `a` and returns a new element.
func (e Element) Multiply(a Element) Element {
	if e == 0 || a == 0 {
		return 0
	}
	t := lookup()
	return Element(t.exp[int(t.log[e])+int(t.log[a])])
}

// Divide by element `a`. Returns ErrDivideByZero if `a` is zero.
func (e Element) Divide(a Element) (Element, error) {
	if a == 0 {
		return 0, ErrDivideByZero
	}
	if e == 0 {
		return 0, nil
	}
	t := lookup()
	return Element(t.exp[int(t.log[e])+order-int(t.log[a])]), nil
}

// Inverse returns the multiplicative inverse of the element.
// If element has no inverse, an error is returned.
func (e Element) Inverse() (Element, error) {
	return Element(1).Divide(e)
}

// Power raises the element to `exp`. Zero raised to any power is zero,
// and any other element raised to zero is one.
func (e Element) Power(exp int) Element {
	if e == 0 {
		return 0
	}
	k := exp % order
	if k < 0 {
		k += order
	}
	t := lookup()
	return Element(t.exp[(int(t.log[e])*k)%order])
}
