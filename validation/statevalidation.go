package validation

import (
	"fmt"

	"github.com/cloudx-io/auctioncontract/core"
)

// ValidateStateAttestation checks that an enclave attested the expected state of a contract.
//
// Beyond the common checks, it verifies that the attestation names the expected contract,
// that the binding hash recomputes from the attested fields, and that the attested state hash
// equals input.ExpectedStateHash (typically computed by replaying the same commands locally).
// An empty ExpectedStateHash skips the comparison and leaves StateHashMatch false.
func ValidateStateAttestation(input StateValidationInput, opts Options) (*StateValidationResult, error) {
	coseBytes, err := input.AttestationCOSEBase64.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode COSE bytes: %w", err)
	}

	baseResult, err := validateCommonAttestation(coseBytes, opts)
	if err != nil {
		return nil, err
	}

	doc, err := coseBytes.ParseStateAttestation()
	if err != nil {
		return nil, err
	}

	result := &StateValidationResult{BaseValidationResult: *baseResult}

	userData := doc.UserData
	if userData == nil {
		result.addDetail("State attestation user data missing")
		return result, nil
	}
	result.AttestedHash = userData.StateHash

	if userData.ContractID == input.ContractID {
		result.ContractMatch = true
		result.addDetail(fmt.Sprintf("Contract matches: %d", userData.ContractID))
	} else {
		result.addDetail(fmt.Sprintf("Contract mismatch: attested %d, expected %d", userData.ContractID, input.ContractID))
	}

	binding := core.ComputeStateAttestationHash(userData.ContractID, userData.StateHash, userData.StateNonce)
	if binding == userData.BindingHash {
		result.BindingValid = true
		result.addDetail("Binding hash verified")
	} else {
		result.addDetail(fmt.Sprintf("Binding hash mismatch: computed %s, attested %s", binding, userData.BindingHash))
	}

	switch {
	case input.ExpectedStateHash == "":
		result.addDetail(fmt.Sprintf("Attested state hash: %s (no expected hash supplied)", userData.StateHash))
	case input.ExpectedStateHash == userData.StateHash:
		result.StateHashMatch = true
		result.addDetail("State hash matches")
	default:
		result.addDetail(fmt.Sprintf("State hash mismatch: attested %s, expected %s", userData.StateHash, input.ExpectedStateHash))
	}

	return result, nil
}
