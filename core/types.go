package core

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AccountIDLength is the size in bytes of a chain account identifier.
const AccountIDLength = 32

// AccountID identifies a chain account. It is comparable, so it can be used as a map key,
// and ordered bytewise via Compare.
type AccountID [AccountIDLength]byte

// ParseAccountID decodes a hex account identifier, with or without a 0x prefix.
func ParseAccountID(s string) (AccountID, error) {
	var id AccountID
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return id, fmt.Errorf("decode account id: %w", err)
	}
	if len(raw) != AccountIDLength {
		return id, fmt.Errorf("invalid account id length: expected %d bytes, got %d", AccountIDLength, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// Compare orders account identifiers bytewise.
func (a AccountID) Compare(b AccountID) int {
	return bytes.Compare(a[:], b[:])
}

func (a AccountID) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountID) UnmarshalText(text []byte) error {
	id, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = id
	return nil
}

// ContractID is the fixed identifier the host uses to route envelopes to a contract.
type ContractID uint32

const (
	// AuctionHouse routes to the auction contract.
	AuctionHouse ContractID = 5
)

// TxRef points at the chain transaction a command originated from. Contracts treat it as opaque.
type TxRef struct {
	BlockNumber uint32 `json:"blocknum" cbor:"1,keyasint"`
	Index       uint64 `json:"index" cbor:"2,keyasint"`
}

// TransactionStatus is returned to the host after a command is applied.
type TransactionStatus string

const (
	StatusOk               TransactionStatus = "Ok"
	StatusBadCommand       TransactionStatus = "BadCommand"
	StatusBadContract      TransactionStatus = "BadContract"
	StatusDecryptionFailed TransactionStatus = "DecryptionFailed"
)

// IsOk reports whether the host should advance chain state for the command.
func (s TransactionStatus) IsOk() bool {
	return s == StatusOk
}

// unmarshalTagged decodes an externally tagged union of the form {"Variant": {...}}
// and returns the variant name with its raw body.
func unmarshalTagged(data []byte) (string, json.RawMessage, error) {
	// Unit variants may be encoded as a bare string.
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		return name, nil, nil
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return "", nil, fmt.Errorf("decode tagged union: %w", err)
	}
	if len(tagged) != 1 {
		return "", nil, fmt.Errorf("tagged union must have exactly one variant, got %d", len(tagged))
	}
	for name, body := range tagged {
		return name, body, nil
	}
	return "", nil, nil
}
