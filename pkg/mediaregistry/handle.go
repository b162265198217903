package mediaregistry

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// HandlePrefix marks every handle issued by SHA256HandleGenerator.
const HandlePrefix = "mh"

// SHA256HandleGenerator hashes the owner, the owner index and the global
// sequence. The sequence is consumed once per issued handle, so two calls
// never hash the same input.
type SHA256HandleGenerator struct{}

// NewHandleGenerator returns the default handle generator.
func NewHandleGenerator() HandleGenerator {
	return SHA256HandleGenerator{}
}

func (SHA256HandleGenerator) Generate(owner Address, ownerIndex uint64, sequence uint64) PublicHandle {
	var num [8]byte
	h := sha256.New()
	h.Write([]byte(owner))
	h.Write([]byte{0})
	binary.BigEndian.PutUint64(num[:], ownerIndex)
	h.Write(num[:])
	binary.BigEndian.PutUint64(num[:], sequence)
	h.Write(num[:])
	return PublicHandle(HandlePrefix + hex.EncodeToString(h.Sum(nil)))
}

// ValidHandle reports whether s has the shape of a handle this package issues.
func ValidHandle(s string) bool {
	if len(s) != len(HandlePrefix)+sha256.Size*2 || s[:len(HandlePrefix)] != HandlePrefix {
		return false
	}
	_, err := hex.DecodeString(s[len(HandlePrefix):])
	return err == nil
}
