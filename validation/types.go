package validation

import (
	"github.com/cloudx-io/auctioncontract/core"
	"github.com/cloudx-io/auctioncontract/enclaveapi"
)

// BaseValidationResult contains common validation results for all attestation types
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

func (r *BaseValidationResult) addDetail(detail string) {
	r.ValidationDetails = append(r.ValidationDetails, detail)
}

// KeyValidationResult contains validation results specific to key attestations
type KeyValidationResult struct {
	BaseValidationResult
	PublicKeyMatch bool
}

// IsValid returns true if all key validation checks passed
func (r *KeyValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid && r.PublicKeyMatch
}

// StateValidationResult contains validation results specific to state attestations
type StateValidationResult struct {
	BaseValidationResult
	ContractMatch  bool
	BindingValid   bool
	StateHashMatch bool
	AttestedHash   string
}

// IsValid returns true if all state validation checks passed
func (r *StateValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid &&
		r.ContractMatch && r.BindingValid && r.StateHashMatch
}

// StateValidationInput contains everything needed to check a state attestation against
// a locally computed state hash.
type StateValidationInput struct {
	AttestationCOSEBase64 enclaveapi.AttestationCOSEBase64
	ContractID            core.ContractID
	ExpectedStateHash     string
}

// Options configures the checks shared by all attestation types.
type Options struct {
	// KnownPCRs lists accepted enclave measurements. Empty fails PCR validation.
	KnownPCRs []PCRSet
	// RootCAPEM overrides the AWS Nitro root certificate.
	RootCAPEM string
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // repo commit used to build the enclave image
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
