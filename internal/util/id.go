package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// HashIP derives a stable, non-reversible viewer key from a remote
// address, salted so raw addresses never reach the database. The
// ephemeral port is stripped first so every connection from one host
// hashes to the same key.
func HashIP(salt, remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		remoteAddr = host
	}
	sum := sha256.Sum256([]byte(salt + "|" + remoteAddr))
	return hex.EncodeToString(sum[:16])
}
