// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"encoding/binary"
	"math"
)

// Scalar is the closed set of the ten non-string element types among the
// eleven spec.md §3 defines (STRING is handled separately since it is never
// passed as a Go type parameter). Per spec.md §9 "generate the dispatch table rather
// than hand-rolling per-type branches", every encode/decode/widen path
// below switches once on this fixed set.
type Scalar interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

// kindOf returns the Kind corresponding to Go type T.
func kindOf[T Scalar]() Kind {
	var zero T
	switch any(zero).(type) {
	case int8:
		return KindInt8
	case int16:
		return KindInt16
	case int32:
		return KindInt32
	case int64:
		return KindInt64
	case uint8:
		return KindUint8
	case uint16:
		return KindUint16
	case uint32:
		return KindUint32
	case uint64:
		return KindUint64
	case float32:
		return KindFloat32
	case float64:
		return KindFloat64
	default:
		panic("dsml: unreachable scalar kind")
	}
}

// encodeScalar writes value in host byte order into buf, which must be at
// least kindOf[T]().ElemSize() bytes long.
func encodeScalar[T Scalar](buf []byte, value T) {
	switch v := any(value).(type) {
	case int8:
		buf[0] = byte(v)
	case int16:
		binary.NativeEndian.PutUint16(buf, uint16(v))
	case int32:
		binary.NativeEndian.PutUint32(buf, uint32(v))
	case int64:
		binary.NativeEndian.PutUint64(buf, uint64(v))
	case uint8:
		buf[0] = v
	case uint16:
		binary.NativeEndian.PutUint16(buf, v)
	case uint32:
		binary.NativeEndian.PutUint32(buf, v)
	case uint64:
		binary.NativeEndian.PutUint64(buf, v)
	case float32:
		binary.NativeEndian.PutUint32(buf, math.Float32bits(v))
	case float64:
		binary.NativeEndian.PutUint64(buf, math.Float64bits(v))
	}
}

// decodeWidened reads one element of the stored kind out of payload and
// converts it to T, implementing the §3 widening rule for Get. Callers
// must have already checked satisfiesGet(stored, kindOf[T](), false).
func decodeWidened[T Scalar](payload []byte, stored Kind) T {
	switch stored {
	case KindInt8:
		return T(int8(payload[0]))
	case KindInt16:
		return T(int16(binary.NativeEndian.Uint16(payload)))
	case KindInt32:
		return T(int32(binary.NativeEndian.Uint32(payload)))
	case KindInt64:
		return T(int64(binary.NativeEndian.Uint64(payload)))
	case KindUint8:
		return T(payload[0])
	case KindUint16:
		return T(binary.NativeEndian.Uint16(payload))
	case KindUint32:
		return T(binary.NativeEndian.Uint32(payload))
	case KindUint64:
		return T(binary.NativeEndian.Uint64(payload))
	case KindFloat32:
		return T(math.Float32frombits(binary.NativeEndian.Uint32(payload)))
	case KindFloat64:
		return T(math.Float64frombits(binary.NativeEndian.Uint64(payload)))
	default:
		panic("dsml: unreachable stored kind in decodeWidened")
	}
}

// decodeArray decodes count elements of kind k (exact match, no widening —
// §3 forbids widening for arrays) out of payload into a fresh []T.
func decodeArray[T Scalar](payload []byte, k Kind, count int) []T {
	size := k.ElemSize()
	out := make([]T, count)
	for i := 0; i < count; i++ {
		out[i] = decodeWidened[T](payload[i*size:(i+1)*size], k)
	}
	return out
}

// encodeArray encodes values (all of exact kind kindOf[T]()) into a fresh
// payload buffer.
func encodeArray[T Scalar](values []T) []byte {
	k := kindOf[T]()
	size := k.ElemSize()
	buf := make([]byte, len(values)*size)
	for i, v := range values {
		encodeScalar(buf[i*size:(i+1)*size], v)
	}
	return buf
}
