package fingerprint

import (
	"fmt"
	"strconv"
	"strings"
)

// Encoded returns the storage form of the hashes: pHash and dHash hex strings
// joined by a colon. Sightings persist this in their image_hash column.
func (h *HashResult) Encoded() string {
	return h.PHash + ":" + h.DHash
}

// DecodeHashes parses a stored image_hash back into raw hash bits.
func DecodeHashes(encoded string) (pHash, dHash uint64, err error) {
	pHex, dHex, found := strings.Cut(encoded, ":")
	if !found {
		return 0, 0, fmt.Errorf("malformed image hash %q", encoded)
	}
	pHash, err = strconv.ParseUint(pHex, 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse pHash: %w", err)
	}
	dHash, err = strconv.ParseUint(dHex, 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse dHash: %w", err)
	}
	return pHash, dHash, nil
}

// NearDuplicate reports whether a stored hash is within the Hamming threshold
// of freshly computed hashes. Either hash matching is enough, since pHash and
// dHash capture different structure of the same photograph. Malformed stored
// hashes never match.
func NearDuplicate(stored string, h *HashResult, threshold int) bool {
	if stored == "" || h == nil {
		return false
	}
	pHash, dHash, err := DecodeHashes(stored)
	if err != nil {
		return false
	}
	return HammingDistance(pHash, h.PHashBits) <= threshold ||
		HammingDistance(dHash, h.DHashBits) <= threshold
}
