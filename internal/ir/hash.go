package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content fingerprints.
// Version suffix enables future algorithm migration.
const (
	DomainRule = "ratelimits/rule/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + part_1 + ... + part_n)
func hashWithDomain(domain string, parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RuleContentKey fingerprints the immutable content of a rule.
//
// Two rules have the same key exactly when they link the same incident,
// carry byte-identical descriptions and their payloads have the same
// canonical form. The payload's byte encoding does not take part.
func RuleContentKey(incidentID IncidentID, payload IRValue, description string) (string, error) {
	canonical, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("RuleContentKey: %w", err)
	}

	// Length prefix keeps description/payload boundaries unambiguous.
	desc := binary.AppendUvarint(nil, uint64(len(description)))
	desc = append(desc, description...)

	return hashWithDomain(DomainRule, incidentID[:], desc, canonical), nil
}

// RawRuleContentKey parses raw and fingerprints the result.
func RawRuleContentKey(incidentID IncidentID, raw []byte, description string) (string, error) {
	payload, err := ParseValue(raw)
	if err != nil {
		return "", fmt.Errorf("RawRuleContentKey: %w", err)
	}
	return RuleContentKey(incidentID, payload, description)
}

// MustRawRuleContentKey is like RawRuleContentKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRawRuleContentKey(incidentID IncidentID, raw []byte, description string) string {
	key, err := RawRuleContentKey(incidentID, raw, description)
	if err != nil {
		panic(err)
	}
	return key
}
