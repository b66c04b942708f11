// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSatisfiesGetExactMatchAlwaysOK(t *testing.T) {
	for k := KindInt8; k <= KindString; k++ {
		assert.True(t, satisfiesGet(k, k, false))
		assert.True(t, satisfiesGet(k, k, true))
	}
}

func TestSatisfiesGetWideningScalar(t *testing.T) {
	assert.True(t, satisfiesGet(KindInt8, KindInt32, false))
	assert.True(t, satisfiesGet(KindInt16, KindInt64, false))
	assert.True(t, satisfiesGet(KindUint8, KindUint64, false))
	assert.True(t, satisfiesGet(KindFloat32, KindFloat64, false))

	// Narrowing is never allowed.
	assert.False(t, satisfiesGet(KindInt32, KindInt8, false))
	assert.False(t, satisfiesGet(KindFloat64, KindFloat32, false))

	// Cross-family widening is never allowed.
	assert.False(t, satisfiesGet(KindInt8, KindUint16, false))
	assert.False(t, satisfiesGet(KindUint8, KindFloat32, false))
	assert.False(t, satisfiesGet(KindInt32, KindFloat64, false))
}

func TestSatisfiesGetArraysRequireExactMatch(t *testing.T) {
	assert.False(t, satisfiesGet(KindInt8, KindInt32, true))
	assert.True(t, satisfiesGet(KindInt8, KindInt8, true))
}

func TestSatisfiesGetStringNeverWidens(t *testing.T) {
	assert.False(t, satisfiesGet(KindString, KindUint8, false))
	assert.False(t, satisfiesGet(KindUint8, KindString, false))
	assert.True(t, satisfiesGet(KindString, KindString, false))
}

func TestSatisfiesSetRequiresExactMatch(t *testing.T) {
	assert.True(t, satisfiesSet(KindInt32, KindInt32))
	assert.False(t, satisfiesSet(KindInt8, KindInt32))
	assert.False(t, satisfiesSet(KindInt32, KindInt8))
}

func TestKindElemSize(t *testing.T) {
	assert.Equal(t, 1, KindInt8.ElemSize())
	assert.Equal(t, 2, KindInt16.ElemSize())
	assert.Equal(t, 4, KindInt32.ElemSize())
	assert.Equal(t, 8, KindInt64.ElemSize())
	assert.Equal(t, 4, KindFloat32.ElemSize())
	assert.Equal(t, 8, KindFloat64.ElemSize())
	assert.Equal(t, 1, KindString.ElemSize())
}

func TestNewVariableInitializesScalarPayload(t *testing.T) {
	v := newVariable("X", KindInt32, false, "OWNER", "OWNER")
	assert.True(t, v.isOwner)
	assert.Equal(t, 1, v.elementCount)
	assert.Len(t, v.payload, 4)

	remote := newVariable("X", KindInt32, false, "OWNER", "OTHER")
	assert.False(t, remote.isOwner)
}
