package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudx-io/auctioncontract/enclaveapi"
)

// ValidateKeyAttestation validates the attestation returned with the enclave's command
// encryption key.
//
// Parameters:
//   - attestationCOSEBase64: Base64-encoded COSE_Sign1 bytes from KeyResponse.AttestationCOSEBase64
//   - expectedPublicKey: PEM-encoded public key to validate (from KeyResponse.PublicKey)
//
// Returns a KeyValidationResult (call result.IsValid() for the overall status), or an error
// if the attestation cannot be parsed at all.
func ValidateKeyAttestation(attestationCOSEBase64 enclaveapi.AttestationCOSEBase64, expectedPublicKey string, opts Options) (*KeyValidationResult, error) {
	coseBytes, err := attestationCOSEBase64.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode COSE bytes: %w", err)
	}

	baseResult, err := validateCommonAttestation(coseBytes, opts)
	if err != nil {
		return nil, err
	}

	_, userDataBytes, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, fmt.Errorf("parse attestation document: %w", err)
	}

	result := &KeyValidationResult{BaseValidationResult: *baseResult}

	var userData enclaveapi.KeyAttestationUserData
	if len(userDataBytes) > 0 {
		if err := json.Unmarshal(userDataBytes, &userData); err != nil {
			return nil, fmt.Errorf("parse user data: %w", err)
		}
	}

	if userData.PublicKey == "" {
		result.addDetail("Public key missing from attestation")
		return result, nil
	}

	// PEM encoding leaves a trailing newline that files on disk may or may not keep
	if strings.TrimSpace(expectedPublicKey) == strings.TrimSpace(userData.PublicKey) {
		result.PublicKeyMatch = true
		result.addDetail("Public key matches attestation")
	} else {
		result.addDetail("Public key mismatch: provided key does not match attested key")
	}

	return result, nil
}
