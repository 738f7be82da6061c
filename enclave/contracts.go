package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cloudx-io/auctioncontract/contracts"
	"github.com/cloudx-io/auctioncontract/core"
	"github.com/cloudx-io/auctioncontract/enclaveapi"
)

// NewContractRegistry builds the registry of contracts hosted by this enclave.
func NewContractRegistry() (*contracts.Registry, error) {
	auction := core.NewAuction()
	auction.SetEventSink(logEvent)

	return contracts.NewRegistry(
		contracts.Bind[core.Command, core.Request, core.Response](auction),
	)
}

func logEvent(e core.Event) {
	switch e.Kind {
	case core.EventBidPlaced:
		log.Printf("INFO: Got bid %d from %s", e.Value, e.Account)
	case core.EventWinnerChanged:
		log.Printf("INFO: Setting %s as the new winner with bid %d", e.Account, e.Value)
	}
}

// ProcessCommand decrypts the command if needed and applies it to the target contract.
func ProcessCommand(registry *contracts.Registry, keyManager *KeyManager, env enclaveapi.CommandEnvelope) enclaveapi.CommandResponse {
	startTime := time.Now()
	resp := enclaveapi.CommandResponse{
		Type:      "command_response",
		RequestID: env.RequestID,
	}
	fail := func(status core.TransactionStatus, err error) enclaveapi.CommandResponse {
		log.Printf("ERROR: Command %s for contract %d rejected: %v", env.RequestID, env.ContractID, err)
		resp.Status = status
		resp.Message = err.Error()
		resp.ProcessingTime = time.Since(startTime).Milliseconds()
		return resp
	}

	if env.Origin == nil {
		return fail(core.StatusBadCommand, fmt.Errorf("command has no origin"))
	}

	payload := env.Command
	switch {
	case env.EncryptedCommand != nil && len(env.Command) > 0:
		return fail(core.StatusBadCommand, fmt.Errorf("command and encrypted_command are mutually exclusive"))
	case env.EncryptedCommand != nil:
		plaintext, err := keyManager.Decrypt(env.EncryptedCommand)
		if err != nil {
			return fail(core.StatusDecryptionFailed, fmt.Errorf("decrypt command: %w", err))
		}
		payload = json.RawMessage(plaintext)
	case len(env.Command) == 0:
		return fail(core.StatusBadCommand, fmt.Errorf("command is empty"))
	}

	status, err := registry.ApplyCommand(env.ContractID, *env.Origin, env.TxRef, payload)
	if err != nil {
		return fail(status, err)
	}

	resp.Success = status.IsOk()
	resp.Status = status
	resp.ProcessingTime = time.Since(startTime).Milliseconds()
	log.Printf("INFO: Command %s applied to contract %d from %s: %s (%dms)",
		env.RequestID, env.ContractID, env.Origin, status, resp.ProcessingTime)
	return resp
}

// ProcessQuery answers a read-only request against the target contract.
func ProcessQuery(registry *contracts.Registry, env enclaveapi.QueryEnvelope) enclaveapi.QueryResponse {
	resp := enclaveapi.QueryResponse{
		Type:      "query_response",
		RequestID: env.RequestID,
	}

	payload, err := registry.HandleQuery(env.ContractID, env.Origin, env.Request)
	if err != nil {
		log.Printf("ERROR: Query %s for contract %d failed: %v", env.RequestID, env.ContractID, err)
		resp.Message = err.Error()
		return resp
	}

	resp.Success = true
	resp.Response = payload
	return resp
}

// ProcessStateAttestation attests the current state hash of the target contract.
func ProcessStateAttestation(attester EnclaveAttester, registry *contracts.Registry, req enclaveapi.StateAttestationRequest) enclaveapi.StateAttestationResponse {
	resp := enclaveapi.StateAttestationResponse{
		Type:      "state_attestation_response",
		RequestID: req.RequestID,
	}

	stateHash, err := registry.StateHash(req.ContractID)
	if err != nil {
		resp.Message = fmt.Sprintf("State hash failed: %v", err)
		return resp
	}
	resp.StateHash = stateHash

	attestation, err := GenerateStateAttestation(attester, req.ContractID, stateHash)
	if err != nil {
		resp.Message = fmt.Sprintf("Enclave attestation failed: %v", err)
		return resp
	}

	resp.Success = true
	resp.AttestationCOSEBase64 = attestation.EncodeBase64()
	return resp
}
