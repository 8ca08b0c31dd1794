// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package obslog

import (
	"encoding/binary"
	"time"
)

// Key prefixes. Each record kind lives in its own ordered keyspace:
// prefix | unix nanos (8 bytes, big endian) | arrival sequence (8 bytes).
const (
	prefixObservation = "obs:"
	prefixDelivery    = "dlv:"
	prefixAlert       = "alr:"
)

func makeKey(prefix string, ts time.Time, seq uint64) []byte {
	k := make([]byte, len(prefix)+16)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], tsBits(ts))
	binary.BigEndian.PutUint64(k[len(prefix)+8:], seq)
	return k
}

// seekKey is the smallest key at or after ts.
func seekKey(prefix string, ts time.Time) []byte {
	return makeKey(prefix, ts, 0)
}

// endKey sorts after every key in the prefix.
func endKey(prefix string) []byte {
	k := make([]byte, len(prefix)+16)
	copy(k, prefix)
	for i := len(prefix); i < len(k); i++ {
		k[i] = 0xff
	}
	return k
}

func keySeq(prefix string, k []byte) uint64 {
	if len(k) < len(prefix)+16 {
		return 0
	}
	return binary.BigEndian.Uint64(k[len(prefix)+8:])
}

var unixEpoch = time.Unix(0, 0)

// tsBits clamps pre-epoch times, including the zero time, to zero so key
// order matches time order.
func tsBits(ts time.Time) uint64 {
	if ts.Before(unixEpoch) {
		return 0
	}
	return uint64(ts.UnixNano())
}
