package arena

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

const signatureLen = 65

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		_, _ = h.Write(d)
	}
	return h.Sum(nil)
}

// PersonalMessageHash is the digest a wallet signs for personal_sign.
func PersonalMessageHash(msg string) []byte {
	prefix := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(msg))
	return keccak256([]byte(prefix), []byte(msg))
}

// AddressOf derives the checksummed address of a public key.
func AddressOf(pub *secp256k1.PublicKey) string {
	digest := keccak256(pub.SerializeUncompressed()[1:])
	return checksum(hex.EncodeToString(digest[12:]))
}

// RecoverSigner returns the address that produced a personal_sign signature over msg. The
// signature is hex r || s || v with v in {0, 1, 27, 28}.
func RecoverSigner(msg, signature string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "0x"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(raw) != signatureLen {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidSignature, len(raw))
	}
	v := raw[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return "", fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, raw[64])
	}

	// Compact form: header byte (27 + recovery id, uncompressed key) followed by r and s.
	compact := make([]byte, 0, signatureLen)
	compact = append(compact, 27+v)
	compact = append(compact, raw[:64]...)

	pub, _, err := ecdsa.RecoverCompact(compact, PersonalMessageHash(msg))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return AddressOf(pub), nil
}
