package crypto

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AddressFromUncompressedPub expects a 65-byte uncompressed secp256k1 key
// (0x04 || X || Y) and returns its EIP-55 address, or "" if malformed.
func AddressFromUncompressedPub(pub []byte) string {
	if len(pub) != 65 || pub[0] != 0x04 {
		return ""
	}
	return EIP55(keccak(pub[1:])[12:])
}

// ChecksumAddress normalizes a 0x-prefixed hex address to EIP-55 form.
func ChecksumAddress(s string) (string, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 40 {
		return "", false
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return "", false
	}
	return EIP55(raw), true
}

// EIP55 computes the checksummed hex string of a 20-byte address.
func EIP55(addr20 []byte) string {
	lower := hex.EncodeToString(addr20)
	hash := keccak([]byte(lower))

	out := make([]byte, 2, 2+len(lower))
	copy(out, "0x")
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		nibble := hash[i/2] >> 4
		if i%2 == 1 {
			nibble = hash[i/2] & 0x0f
		}
		if c > '9' && nibble >= 8 {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

func keccak(b []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return h.Sum(nil)
}
