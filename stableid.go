package gatekeep

import (
	"crypto/sha256"
	"encoding/hex"
)

// bucketSpace is the number of basis-point buckets users are assigned to.
// A ramp-up of 10000 basis points covers the whole space (100%).
const bucketSpace = 10000

// StableID is an opaque, normalized identifier used as the bucketing seed
// for percentage rollouts. Its canonical form is a lowercase hex string;
// two StableIDs built from the same input always compare equal byte for
// byte.
type StableID struct {
	hex string
}

// NewStableID normalizes input into a StableID. Input that is already a
// non-empty, even-length lowercase hex string is used as-is; anything else
// is SHA-256 hashed and hex encoded. The mapping is pure and stable across
// processes and machines.
func NewStableID(input string) StableID {
	if isLowerHex(input) {
		return StableID{hex: input}
	}
	sum := sha256.Sum256([]byte(input))
	return StableID{hex: hex.EncodeToString(sum[:])}
}

// Hex returns the canonical lowercase hex form.
func (id StableID) Hex() string {
	return id.hex
}

// IsZero reports whether the id was never set.
func (id StableID) IsZero() bool {
	return id.hex == ""
}

func isLowerHex(s string) bool {
	if s == "" || len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Bucket deterministically assigns id to a basis-point bucket in
// [0, 10000) for the given flag key and salt.
//
// The construction is part of the wire contract and must match bit for bit
// across implementations: SHA-256 over the UTF-8 concatenation
// salt + flagKey + id.Hex(), the first 8 digest bytes read as a big-endian
// unsigned integer, reduced modulo 10000. Changing a flag's salt re-buckets
// every stable id for that flag.
func Bucket(id StableID, flagKey, salt string) int {
	h := sha256.New()
	h.Write([]byte(salt))
	h.Write([]byte(flagKey))
	h.Write([]byte(id.hex))
	sum := h.Sum(nil)

	var n uint64
	for _, b := range sum[:8] {
		n = n<<8 | uint64(b)
	}
	return int(n % bucketSpace)
}

// InRollout reports whether a bucket falls inside a ramp-up expressed in
// basis points (10000 = 100%). For a fixed bucket the result is monotonic
// in rampUpBasisPoints.
func InRollout(bucket, rampUpBasisPoints int) bool {
	return bucket < rampUpBasisPoints
}

func containsStableID(ids []StableID, id StableID) bool {
	for _, candidate := range ids {
		if candidate.hex == id.hex {
			return true
		}
	}
	return false
}
