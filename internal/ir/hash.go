package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainState  = "relay/state/v1"
	DomainAction = "relay/action/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StateHash computes the content hash of a state tree.
// Two trees with equal structure always produce the same hash, which is
// what journal replay compares against.
func StateHash(state IRObject) (string, error) {
	canonical, err := MarshalCanonical(state)
	if err != nil {
		return "", fmt.Errorf("StateHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// ActionID computes a content-addressed ID for a committed action.
// The ID is stable across replays given the same inputs.
func ActionID(flowToken, actionType string, payload IRValue, seq int64) (string, error) {
	if payload == nil {
		payload = IRNull{}
	}
	obj := IRObject{
		"flow_token": IRString(flowToken),
		"type":       IRString(actionType),
		"payload":    payload,
		"seq":        IRInt(seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ActionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainAction, canonical), nil
}

// MustStateHash is like StateHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustStateHash(state IRObject) string {
	h, err := StateHash(state)
	if err != nil {
		panic(err)
	}
	return h
}
