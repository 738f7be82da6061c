package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudx-io/auctioncontract/enclaveapi"
	"github.com/cloudx-io/auctioncontract/validation"
)

// plainTextHandler writes bare messages to stdout, without timestamps or levels.
type plainTextHandler struct{}

func (*plainTextHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (*plainTextHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintln(os.Stdout, r.Message)
	return err
}

func (h *plainTextHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *plainTextHandler) WithGroup(_ string) slog.Handler {
	return h
}

var logger = slog.New(&plainTextHandler{})

const (
	exitValid   = 0
	exitInvalid = 1
	exitError   = 2
)

func main() {
	var (
		responseInput = flag.String("attestation", "", "key_request response JSON (file path or inline JSON)")
		publicKeyPath = flag.String("public-key", "", "PEM file holding the key commands are encrypted to; defaults to the key in the response")
		pcrConfigPath = flag.String("pcrs", "", "Path to PCR config JSON file")
		outputFormat  = flag.String("format", "text", "Output format: text or json")
		help          = flag.Bool("help", false, "Show usage information")
	)
	flag.Parse()

	if *help {
		showUsage()
		os.Exit(exitValid)
	}
	if *responseInput == "" || *pcrConfigPath == "" {
		showUsage()
		os.Exit(exitInvalid)
	}

	os.Exit(run(*responseInput, *publicKeyPath, *pcrConfigPath, *outputFormat))
}

func run(responseInput, publicKeyPath, pcrConfigPath, outputFormat string) int {
	keyResponse, err := readKeyResponse(responseInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading key response: %v\n", err)
		return exitError
	}

	// Checking the key the response itself carries still proves the enclave attested it;
	// --public-key pins a key obtained out of band.
	publicKey := keyResponse.PublicKey
	if publicKeyPath != "" {
		data, err := os.ReadFile(publicKeyPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading public key: %v\n", err)
			return exitError
		}
		publicKey = string(data)
	}

	knownPCRs, err := validation.LoadPCRsFromFile(pcrConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading PCR config: %v\n", err)
		return exitError
	}

	result, err := validation.ValidateKeyAttestation(keyResponse.AttestationCOSEBase64, publicKey, validation.Options{KnownPCRs: knownPCRs})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		return exitError
	}

	report := result.Report()
	if outputFormat == "json" {
		err = report.WriteJSON(os.Stdout)
	} else {
		err = report.WriteText(os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		return exitError
	}

	if !report.Valid {
		return exitInvalid
	}
	return exitValid
}

func showUsage() {
	logger.Info("Enclave Key Attestation Validator")
	logger.Info("")
	logger.Info("Checks that the key used to encrypt contract commands was generated inside an")
	logger.Info("attested enclave before anything is encrypted to it.")
	logger.Info("")
	logger.Info("Usage:")
	logger.Info("  key-validator --attestation <json> --pcrs <path> [--public-key <pem>] [--format text|json]")
	logger.Info("")
	logger.Info("  --attestation    key_request response, as a file path or inline JSON")
	logger.Info("  --pcrs           {\"pcr_sets\":[{\"pcr0\":...,\"pcr1\":...,\"pcr2\":...,\"commit_hash\":...}]}")
	logger.Info("  --public-key     pin a PEM key instead of the one in the response")
	logger.Info("")
	logger.Info("Exit codes: 0 valid, 1 invalid, 2 input or runtime error")
}

func readKeyResponse(input string) (*enclaveapi.KeyResponse, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		data = []byte(input)
	}

	var keyResponse enclaveapi.KeyResponse
	if err := json.Unmarshal(data, &keyResponse); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if keyResponse.AttestationCOSEBase64 == "" {
		return nil, fmt.Errorf("missing attestation_cose_base64 field in key response")
	}
	return &keyResponse, nil
}
