package core

import (
	"crypto/sha256"
	"fmt"
)

// ComputeStateHash computes the digest replicas compare to confirm they hold identical state.
//
// Formula: SHA256(contract_id as 4 big-endian bytes + canonical snapshot)
func ComputeStateHash(id ContractID, snapshot []byte) string {
	h := sha256.New()
	h.Write([]byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)})
	h.Write(snapshot)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ComputeStateAttestationHash binds a state hash to a nonce for attestation user data.
//
// Formula: SHA256(contract_id + "|" + state_hash + "|" + nonce)
func ComputeStateAttestationHash(id ContractID, stateHash string, nonce string) string {
	data := fmt.Sprintf("%d|%s|%s", id, stateHash, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

var _ StateHasher = (*Auction)(nil)

// StateHash returns the canonical digest of the auction's ledger.
func (a *Auction) StateHash() (string, error) {
	snapshot, err := a.Snapshot()
	if err != nil {
		return "", err
	}
	return ComputeStateHash(a.ID(), snapshot), nil
}
