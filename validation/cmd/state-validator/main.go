package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/cloudx-io/auctioncontract/core"
	"github.com/cloudx-io/auctioncontract/enclaveapi"
	"github.com/cloudx-io/auctioncontract/validation"
)

func main() {
	var (
		attestationInput = flag.String("attestation", "", "State attestation response JSON (file path or inline JSON)")
		pcrConfigPath    = flag.String("pcrs", "", "Path to PCR config JSON file")
		contractID       = flag.Uint("contract", uint(core.AuctionHouse), "Contract identifier the attestation must name")
		expectedHash     = flag.String("expected-hash", "", "Expected state hash (hex)")
		snapshotPath     = flag.String("snapshot", "", "Path to an auction snapshot (CBOR) to derive the expected state hash from")
		outputFormat     = flag.String("format", "text", "Output format: text or json")
		help             = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help {
		showUsage()
		os.Exit(0)
	}

	if *attestationInput == "" || *pcrConfigPath == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: --attestation and --pcrs are required\n")
		os.Exit(1)
	}

	if *expectedHash != "" && *snapshotPath != "" {
		fmt.Fprintf(os.Stderr, "Error: --expected-hash and --snapshot are mutually exclusive\n")
		os.Exit(1)
	}

	response, err := readStateAttestation(*attestationInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading attestation: %v\n", err)
		os.Exit(2)
	}

	knownPCRs, err := validation.LoadPCRsFromFile(*pcrConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading PCR config: %v\n", err)
		os.Exit(2)
	}

	expected := *expectedHash
	if *snapshotPath != "" {
		expected, err = stateHashFromSnapshot(*snapshotPath, core.ContractID(*contractID))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading snapshot: %v\n", err)
			os.Exit(2)
		}
	}

	result, err := validation.ValidateStateAttestation(validation.StateValidationInput{
		AttestationCOSEBase64: response.AttestationCOSEBase64,
		ContractID:            core.ContractID(*contractID),
		ExpectedStateHash:     expected,
	}, validation.Options{KnownPCRs: knownPCRs})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	report := result.Report()
	if *outputFormat == "json" {
		err = report.WriteJSON(os.Stdout)
	} else {
		err = report.WriteText(os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(2)
	}

	if !report.Valid {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	fmt.Println("Contract State Attestation Validator")
	fmt.Println()
	fmt.Println("Validates an enclave attestation of a contract's state hash.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  state-validator --attestation <json> --pcrs <path> [--expected-hash <hex> | --snapshot <path>] [options]")
	fmt.Println()
	fmt.Println("Required Flags:")
	fmt.Println("  --attestation <json>              state_attestation response (file path or inline JSON)")
	fmt.Println("  --pcrs <path>                     PCR config: {\"pcr_sets\":[{\"pcr0\":...,\"pcr1\":...,\"pcr2\":...}]}")
	fmt.Println()
	fmt.Println("Optional Flags:")
	fmt.Println("  --contract <id>                   Expected contract identifier (default: 5, auction house)")
	fmt.Println("  --expected-hash <hex>             State hash computed by a local replica")
	fmt.Println("  --snapshot <path>                 Auction snapshot to compute the expected state hash from")
	fmt.Println("  --format <text|json>              Output format (default: text)")
	fmt.Println("  --help                            Show this help message")
	fmt.Println()
	fmt.Println("Without --expected-hash or --snapshot the attested hash is reported but not")
	fmt.Println("compared, and validation fails.")
	fmt.Println()
	fmt.Println("Exit Codes:")
	fmt.Println("  0 - Validation passed")
	fmt.Println("  1 - Validation failed")
	fmt.Println("  2 - Invalid input or runtime error")
}

func readStateAttestation(input string) (*enclaveapi.StateAttestationResponse, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		// Treat as inline JSON
		data = []byte(input)
	}

	var response enclaveapi.StateAttestationResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if response.AttestationCOSEBase64 == "" {
		return nil, fmt.Errorf("missing attestation_cose_base64 field in state attestation response")
	}

	return &response, nil
}

func stateHashFromSnapshot(path string, id core.ContractID) (string, error) {
	if id != core.AuctionHouse {
		return "", fmt.Errorf("snapshots are only supported for the auction house contract (%d)", core.AuctionHouse)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	auction, err := core.RestoreAuction(data)
	if err != nil {
		return "", err
	}
	return auction.StateHash()
}
