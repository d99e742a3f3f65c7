package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Provider name limits.
const (
	FunctionNameLimit = 64
	RuleNameLimit     = 64
)

const hashSuffixLen = 8

// DeriveName bounds name to limit characters. Names that fit are returned
// unchanged; longer names keep a prefix and end with "-" plus a short hash
// of the part that was cut off, so two names sharing the kept prefix still
// map to different results.
func DeriveName(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	keep := limit - hashSuffixLen - 1
	if keep < 1 {
		keep = 1
	}
	sum := sha256.Sum256([]byte(name[keep:]))
	return name[:keep] + "-" + hex.EncodeToString(sum[:])[:hashSuffixLen]
}

// FunctionName derives the function name from a domain name.
func FunctionName(domain string) string {
	return DeriveName(strings.ReplaceAll(CanonicalDomain(domain), ".", "-"), FunctionNameLimit)
}

// CanonicalDomain lower-cases a DNS name and strips its trailing dot.
func CanonicalDomain(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// RootDomain drops the first label of names with more than two labels.
// "api.example.com" becomes "example.com"; "example.com" has no root.
func RootDomain(name string) (string, bool) {
	parts := strings.Split(CanonicalDomain(name), ".")
	if len(parts) <= 2 {
		return "", false
	}
	return strings.Join(parts[1:], "."), true
}
