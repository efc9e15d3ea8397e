package service

import (
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// fieldSep separates hashed fields so "ab"+"c" and "a"+"bc" differ.
const fieldSep = "\x1f"

// Fingerprint returns a hex BLAKE2b-256 digest over the upstream fields a sync
// writes. Equal fingerprints mean the stored product needs no write.
func Fingerprint(name string, cost int64, providerProductCode string) string {
	sum := blake2b.Sum256([]byte(name + fieldSep + strconv.FormatInt(cost, 10) + fieldSep + providerProductCode))
	return hex.EncodeToString(sum[:])
}
