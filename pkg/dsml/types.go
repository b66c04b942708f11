// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// Kind enumerates the eleven element types of spec.md §3. The ordinal here
// is used only for local type checking (Variable.Kind); it never appears on
// the wire (spec.md §4.7 is type-agnostic).
type Kind int

const (
	KindInt8 Kind = iota
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt8:
		return "INT8"
	case KindInt16:
		return "INT16"
	case KindInt32:
		return "INT32"
	case KindInt64:
		return "INT64"
	case KindUint8:
		return "UINT8"
	case KindUint16:
		return "UINT16"
	case KindUint32:
		return "UINT32"
	case KindUint64:
		return "UINT64"
	case KindFloat32:
		return "FLOAT"
	case KindFloat64:
		return "DOUBLE"
	case KindString:
		return "STRING"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// kindByName is the manifest-grammar (§4.1) spelling of each Kind.
var kindByName = map[string]Kind{
	"INT8":   KindInt8,
	"INT16":  KindInt16,
	"INT32":  KindInt32,
	"INT64":  KindInt64,
	"UINT8":  KindUint8,
	"UINT16": KindUint16,
	"UINT32": KindUint32,
	"UINT64": KindUint64,
	"FLOAT":  KindFloat32,
	"DOUBLE": KindFloat64,
	"STRING": KindString,
}

// family groups kinds for the §3 widening-on-get compatibility rule.
type family int

const (
	familySigned family = iota
	familyUnsigned
	familyFloat
	familyOpaque // STRING: never widens into or from anything
)

type kindInfo struct {
	size   int // bytes per element
	fam    family
	rank   int // width ordering within a family, used for the widening check
}

var kindTable = map[Kind]kindInfo{
	KindInt8:    {size: 1, fam: familySigned, rank: 0},
	KindInt16:   {size: 2, fam: familySigned, rank: 1},
	KindInt32:   {size: 4, fam: familySigned, rank: 2},
	KindInt64:   {size: 8, fam: familySigned, rank: 3},
	KindUint8:   {size: 1, fam: familyUnsigned, rank: 0},
	KindUint16:  {size: 2, fam: familyUnsigned, rank: 1},
	KindUint32:  {size: 4, fam: familyUnsigned, rank: 2},
	KindUint64:  {size: 8, fam: familyUnsigned, rank: 3},
	KindFloat32: {size: 4, fam: familyFloat, rank: 0},
	KindFloat64: {size: 8, fam: familyFloat, rank: 1},
	KindString:  {size: 1, fam: familyOpaque, rank: 0},
}

// ElemSize returns sizeof(k) as used in payload-length invariant 1 of §3.
func (k Kind) ElemSize() int { return kindTable[k].size }

// satisfiesGet reports whether a variable stored as `stored` may be read
// back as requested kind `want`, per the §3 compatibility rule: exact match
// for arrays/strings, narrower-or-equal same-family widening for scalars.
func satisfiesGet(stored, want Kind, isArray bool) bool {
	if stored == want {
		return true
	}
	if isArray || stored == KindString || want == KindString {
		return false
	}
	si, wi := kindTable[stored], kindTable[want]
	if si.fam != wi.fam || si.fam == familyOpaque {
		return false
	}
	return si.rank <= wi.rank
}

// satisfiesSet implements §3's "set<T> requires exact match".
func satisfiesSet(stored, want Kind) bool {
	return stored == want
}

// Variable is the in-process descriptor of spec.md §3: a named, typed cell
// with exactly one owning process. Mutable fields are guarded by mu; fields
// set once at construction (Name, Kind, IsArray, OwnerName, isOwner) are
// never written again and may be read without the lock.
type Variable struct {
	Name      string
	Kind      Kind
	IsArray   bool
	OwnerName string
	isOwner   bool

	mu   sync.Mutex
	cond *sync.Cond

	// publishMu serializes "mutate then fan out to subscribers" as one
	// unit so that two concurrent owner-side mutations of the same
	// variable (a local Set racing an applied update-request, say) cannot
	// have their publishes reach a given subscriber out of order.
	publishMu sync.Mutex

	elementCount int
	payload      []byte
	lastUpdated  time.Time

	ownerConn    net.Conn // nil until RegisterOwner runs for this owner, always nil if isOwner
	interestSent bool     // testable property 6: interest is idempotent
	version      int      // bumped on every local mutation; 0 means "never published"
}

func newVariable(name string, kind Kind, isArray bool, owner, self string) *Variable {
	v := &Variable{
		Name:      name,
		Kind:      kind,
		IsArray:   isArray,
		OwnerName: owner,
		isOwner:   owner == self,
	}
	v.cond = sync.NewCond(&v.mu)
	if !isArray {
		v.elementCount = 1
		v.payload = make([]byte, kind.ElemSize())
	}
	return v
}
