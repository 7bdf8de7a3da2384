/*
SPDX-License-Identifier: Apache-2.0

Copyright 2025 ConfigButler

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package publish

import (
	"encoding/binary"
	"errors"
)

const uint32Size = 4

// parseUint32 extracts and removes a host-byte-order uint32 from the front
// of buf, returning the value and the remaining bytes. The publish wire
// format's length prefixes are encoded in the client's host byte order
// rather than network byte order -- a long-standing oddity of the reference
// publish client that implementations must reproduce rather than silently
// normalise to big-endian.
func parseUint32(buf []byte) (uint32, []byte, error) {
	if len(buf) < uint32Size {
		return 0, nil, errors.New("not enough data for u32")
	}
	value := binary.NativeEndian.Uint32(buf[:uint32Size])
	return value, buf[uint32Size:], nil
}

// splitMetadata removes the first n bytes of buf, which must hold the JSON
// metadata body.
func splitMetadata(buf []byte, n uint32) ([]byte, []byte, error) {
	if uint64(len(buf)) < uint64(n) {
		return nil, nil, errors.New("insufficient data in body")
	}
	return buf[:n], buf[n:], nil
}

// splitCrate removes the first n bytes of buf, which must hold the opaque
// archive payload.
func splitCrate(buf []byte, n uint32) ([]byte, []byte, error) {
	if uint64(len(buf)) < uint64(n) {
		return nil, nil, errors.New("not enough data for crate")
	}
	return buf[:n], buf[n:], nil
}

// EncodeFrame assembles a publish request body from JSON metadata and an
// archive payload, inverse to the parsing performed by Publish. It exists
// primarily to let tests exercise round-trips and to let callers build
// requests without duplicating the framing logic.
func EncodeFrame(metadata, data []byte) []byte {
	buf := make([]byte, 0, 2*uint32Size+len(metadata)+len(data))
	buf = appendUint32(buf, uint32(len(metadata)))
	buf = append(buf, metadata...)
	buf = appendUint32(buf, uint32(len(data)))
	buf = append(buf, data...)
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [uint32Size]byte
	binary.NativeEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}
