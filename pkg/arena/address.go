package arena

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AddressKey is the map key used for an address: lower-case with the 0x prefix.
func AddressKey(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// SameAddress compares two addresses ignoring checksum casing. Empty addresses never match.
func SameAddress(a, b string) bool {
	ka, kb := AddressKey(a), AddressKey(b)
	return ka != "" && ka == kb
}

// NormalizeAddress validates a 20-byte hex address and returns its EIP-55 checksummed form.
func NormalizeAddress(addr string) (string, error) {
	a := strings.TrimSpace(addr)
	if !strings.HasPrefix(a, "0x") && !strings.HasPrefix(a, "0X") {
		return "", fmt.Errorf("%w: %q missing 0x prefix", ErrInvalidAddress, addr)
	}
	raw := strings.ToLower(a[2:])
	if len(raw) != 40 {
		return "", fmt.Errorf("%w: %q has %d hex digits", ErrInvalidAddress, addr, len(raw))
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
	}
	return checksum(raw), nil
}

func checksum(lowerHex string) string {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(lowerHex))
	digest := hex.EncodeToString(h.Sum(nil))

	out := make([]byte, 0, 42)
	out = append(out, '0', 'x')
	for i := 0; i < len(lowerHex); i++ {
		c := lowerHex[i]
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// ShortAddress renders 0x1234...abcd for display fallbacks.
func ShortAddress(addr string) string {
	if len(addr) < 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
