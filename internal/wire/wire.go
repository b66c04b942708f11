// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wire implements the DSML wire protocol codec: three frame shapes
// (interest, update-request, publish) over a plain stream connection, all
// integers host-endian and fixed-width, with no version prefix.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrFrameTooLarge guards against a corrupt or hostile peer claiming an
// absurd name/data length; it is not part of the wire format itself.
var ErrFrameTooLarge = errors.New("wire: frame length exceeds sanity limit")

// maxFrameBytes bounds a single name or data segment. The protocol itself
// has no such limit; this is a defensive ceiling against a peer sending a
// bogus 32-bit length and exhausting memory on a single frame.
const maxFrameBytes = 64 << 20

// ClientFrame is either an interest or an update-request, the two shapes a
// client/non-owner ever sends to an owner on the same socket.
type ClientFrame struct {
	IsUpdateRequest bool
	Name            string
	Data            []byte // nil for interest frames
}

// WritePublish writes a publish frame: name_size ∥ name ∥ data_size ∥ data.
func WritePublish(w io.Writer, name string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	return writeSized(w, []byte(name), data, nil)
}

// ReadPublish reads one publish frame, blocking until it is complete or an
// error (including EOF) occurs.
func ReadPublish(r io.Reader) (name string, data []byte, err error) {
	nameBytes, err := readSizedField(r)
	if err != nil {
		return "", nil, err
	}
	data, err = readSizedField(r)
	if err != nil {
		return "", nil, err
	}
	return string(nameBytes), data, nil
}

// WriteInterest writes an interest frame: is_request=0 ∥ name_size ∥ name.
func WriteInterest(w io.Writer, name string) error {
	if err := writeByte(w, 0); err != nil {
		return err
	}
	return writeSized(w, []byte(name), nil, nil)
}

// WriteUpdateRequest writes an update-request frame:
// is_request=1 ∥ name_size ∥ name ∥ data_size ∥ data.
func WriteUpdateRequest(w io.Writer, name string, data []byte) error {
	if err := writeByte(w, 1); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	return writeSized(w, []byte(name), data, nil)
}

// ReadClientFrame reads one interest-or-update-request frame. is_request
// disambiguates the two shapes; there is no other tag byte.
func ReadClientFrame(r io.Reader) (ClientFrame, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return ClientFrame{}, err
	}

	nameBytes, err := readSizedField(r)
	if err != nil {
		return ClientFrame{}, err
	}

	if tag[0] == 0 {
		return ClientFrame{IsUpdateRequest: false, Name: string(nameBytes)}, nil
	}

	data, err := readSizedField(r)
	if err != nil {
		return ClientFrame{}, err
	}
	return ClientFrame{IsUpdateRequest: true, Name: string(nameBytes), Data: data}, nil
}

// writeSized writes one or two length-prefixed byte segments back to back.
// A nil second segment means "name only" (the interest frame shape).
func writeSized(w io.Writer, first, second []byte, _ any) error {
	if err := writeLenPrefixed(w, first); err != nil {
		return err
	}
	if second == nil {
		return nil
	}
	return writeLenPrefixed(w, second)
}

func writeLenPrefixed(w io.Writer, b []byte) error {
	var size [4]byte
	binary.NativeEndian.PutUint32(size[:], uint32(len(b)))
	if _, err := w.Write(size[:]); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readSizedField(r io.Reader) ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := binary.NativeEndian.Uint32(sizeBuf[:])
	if size > maxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	if size == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
