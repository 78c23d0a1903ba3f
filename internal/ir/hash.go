package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for a future algorithm change.
const (
	DomainEntry   = "syncframe/entry/v1"
	DomainFiring  = "syncframe/firing/v1"
	DomainBinding = "syncframe/binding/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EntryID computes a content-addressed ID for an action log entry.
// Two entries with the same flow, position, action and payloads share an ID.
func EntryID(e ActionEntry) (string, error) {
	obj := IRObject{
		"flow_token": IRString(e.FlowToken),
		"index":      IRInt(e.Index),
		"action":     IRString(e.ActionRef()),
		"input":      nonNilObject(e.Input),
		"output":     nonNilObject(e.Output),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EntryID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEntry, canonical), nil
}

// FiringID identifies one firing of a sync: the flow, the when-match trail
// and the ordinal of the frame among those the where clause derived from
// that trail.
func FiringID(flowToken, syncID string, trail []int, ordinal int) string {
	arr := make(IRArray, len(trail))
	for i, idx := range trail {
		arr[i] = IRInt(idx)
	}
	obj := IRObject{
		"flow_token": IRString(flowToken),
		"sync_id":    IRString(syncID),
		"trail":      arr,
		"ordinal":    IRInt(ordinal),
	}
	// Only strings and ints: cannot fail.
	canonical, _ := MarshalCanonical(obj)
	return hashWithDomain(DomainFiring, canonical)
}

// BindingHash hashes a frame's bindings for the audit trail.
// Returns error if bindings cannot be canonically marshaled.
func BindingHash(bindings IRObject) (string, error) {
	canonical, err := MarshalCanonical(bindings)
	if err != nil {
		return "", fmt.Errorf("BindingHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainBinding, canonical), nil
}

// MustEntryID is like EntryID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEntryID(e ActionEntry) string {
	id, err := EntryID(e)
	if err != nil {
		panic(err)
	}
	return id
}

// MustBindingHash is like BindingHash but panics on error.
func MustBindingHash(bindings IRObject) string {
	hash, err := BindingHash(bindings)
	if err != nil {
		panic(err)
	}
	return hash
}

func nonNilObject(obj IRObject) IRObject {
	if obj == nil {
		return IRObject{}
	}
	return obj
}
