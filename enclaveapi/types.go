package enclaveapi

import (
	"encoding/json"
	"time"

	"github.com/cloudx-io/auctioncontract/core"
)

// Request types understood by the enclave server.
const (
	TypePing             = "ping"
	TypeKeyRequest       = "key_request"
	TypeCommand          = "command"
	TypeQuery            = "query"
	TypeStateAttestation = "state_attestation"
)

// EncryptedPayload is a command encrypted with RSA-OAEP/AES-256-GCM for the enclave's public key,
// so that it is only ever decrypted inside the TEE.
type EncryptedPayload struct {
	AESKeyEncrypted  string `json:"aes_key_encrypted"`        // base64-encoded RSA-OAEP encrypted AES key
	EncryptedPayload string `json:"encrypted_payload"`        // base64-encoded AES-GCM encrypted command JSON
	Nonce            string `json:"nonce"`                    // base64-encoded GCM nonce (12 bytes)
	HashAlgorithm    string `json:"hash_algorithm,omitempty"` // Optional: "SHA-256" (default) or "SHA-1" for RSA-OAEP
}

// CommandEnvelope carries a command from the ordered transaction log. Origin has already been
// authenticated by the host. Exactly one of Command and EncryptedCommand is set.
type CommandEnvelope struct {
	Type             string            `json:"type"`
	RequestID        string            `json:"request_id,omitempty"`
	ContractID       core.ContractID   `json:"contract_id"`
	Origin           *core.AccountID   `json:"origin"`
	TxRef            core.TxRef        `json:"tx_ref"`
	Command          json.RawMessage   `json:"command,omitempty"`
	EncryptedCommand *EncryptedPayload `json:"encrypted_command,omitempty"`
}

// CommandResponse reports the status of an applied command. The host advances chain state
// only when Status is Ok.
type CommandResponse struct {
	Type           string                 `json:"type"`
	RequestID      string                 `json:"request_id,omitempty"`
	Success        bool                   `json:"success"`
	Status         core.TransactionStatus `json:"status"`
	Message        string                 `json:"message,omitempty"`
	ProcessingTime int64                  `json:"processing_time_ms"`
}

// QueryEnvelope carries a read-only request. Origin is informational and may be absent.
type QueryEnvelope struct {
	Type       string          `json:"type"`
	RequestID  string          `json:"request_id,omitempty"`
	ContractID core.ContractID `json:"contract_id"`
	Origin     *core.AccountID `json:"origin"`
	Request    json.RawMessage `json:"request"`
}

// QueryResponse wraps the contract's response payload.
type QueryResponse struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
}

// StateAttestationRequest asks the enclave to attest the current state digest of a contract.
type StateAttestationRequest struct {
	Type       string          `json:"type"`
	RequestID  string          `json:"request_id,omitempty"`
	ContractID core.ContractID `json:"contract_id"`
}

// StateAttestationResponse carries the attested state digest.
type StateAttestationResponse struct {
	Type                  string                `json:"type"`
	RequestID             string                `json:"request_id,omitempty"`
	Success               bool                  `json:"success"`
	Message               string                `json:"message,omitempty"`
	StateHash             string                `json:"state_hash,omitempty"`
	AttestationCOSEBase64 AttestationCOSEBase64 `json:"attestation_cose_base64,omitempty"`
}

// KeyResponse represents the response from a key request to the TEE enclave
type KeyResponse struct {
	Type                  string                `json:"type"`
	PublicKey             string                `json:"public_key"` // PEM format
	AttestationCOSEBase64 AttestationCOSEBase64 `json:"attestation_cose_base64"`
}

// ErrorResponse is returned for requests that could not be decoded or routed.
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc represents the base structured attestation data from AWS Nitro Enclaves
// This contains the common fields shared by all attestation types
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"` // base64 DER
	CABundle        []string  `json:"cabundle"`    // base64 DER
	PublicKey       string    `json:"public_key"`
	Nonce           string    `json:"nonce"`
}

// StateAttestationUserData is embedded in a state attestation. BindingHash ties the state hash
// to the contract and nonce (see core.ComputeStateAttestationHash).
type StateAttestationUserData struct {
	ContractID  core.ContractID `json:"contract_id"`
	StateHash   string          `json:"state_hash"`
	StateNonce  string          `json:"state_nonce"`
	BindingHash string          `json:"binding_hash"`
	Timestamp   time.Time       `json:"timestamp"`
}

// StateAttestationDoc represents attestation of a contract's state
type StateAttestationDoc struct {
	AttestationDoc
	UserData *StateAttestationUserData `json:"user_data"`
}

// KeyAttestationUserData represents the key-specific data embedded in key attestation
type KeyAttestationUserData struct {
	KeyAlgorithm string `json:"key_algorithm"` // e.g., "RSA-2048"
	PublicKey    string `json:"public_key"`    // PEM-encoded public key
}

// KeyAttestationDoc represents attestation specifically for key distribution
type KeyAttestationDoc struct {
	AttestationDoc
	UserData *KeyAttestationUserData `json:"user_data"`
}
