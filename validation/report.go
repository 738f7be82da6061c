package validation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Check is one named pass/fail line of a validation report.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// Report is the printable form of a validation result, shared by the validator CLIs.
type Report struct {
	Title   string            `json:"-"`
	Valid   bool              `json:"valid"`
	Checks  []Check           `json:"checks"`
	Facts   map[string]string `json:"facts,omitempty"`
	Details []string          `json:"details"`
}

func (r *BaseValidationResult) checks() []Check {
	return []Check{
		{Name: "PCRs Valid", Passed: r.PCRsValid},
		{Name: "Certificate Valid", Passed: r.CertificateValid},
		{Name: "Signature Valid", Passed: r.SignatureValid},
	}
}

// Report summarises a key attestation check.
func (r *KeyValidationResult) Report() Report {
	return Report{
		Title:   "Enclave Key Attestation",
		Valid:   r.IsValid(),
		Checks:  append(r.checks(), Check{Name: "Public Key Match", Passed: r.PublicKeyMatch}),
		Details: r.ValidationDetails,
	}
}

// Report summarises a state attestation check.
func (r *StateValidationResult) Report() Report {
	return Report{
		Title: "Contract State Attestation",
		Valid: r.IsValid(),
		Checks: append(r.checks(),
			Check{Name: "Contract Match", Passed: r.ContractMatch},
			Check{Name: "Binding Valid", Passed: r.BindingValid},
			Check{Name: "State Hash Match", Passed: r.StateHashMatch},
		),
		Facts:   map[string]string{"attested_state_hash": r.AttestedHash},
		Details: r.ValidationDetails,
	}
}

// WriteText renders the report for a terminal.
func (r Report) WriteText(w io.Writer) error {
	var b strings.Builder
	rule := strings.Repeat("=", len(r.Title)+10)

	fmt.Fprintf(&b, "%s Validator\n%s\n\n", r.Title, rule)
	b.WriteString("Summary:\n")
	for _, c := range r.Checks {
		fmt.Fprintf(&b, "  %-20s %v\n", c.Name+":", c.Passed)
	}
	for name, value := range r.Facts {
		fmt.Fprintf(&b, "  %-20s %s\n", name+":", value)
	}

	if len(r.Details) > 0 {
		b.WriteString("\nDetails:\n")
		for _, detail := range r.Details {
			fmt.Fprintf(&b, "  - %s\n", detail)
		}
	}

	b.WriteString("\n" + rule + "\n")
	if r.Valid {
		b.WriteString("VALIDATION: ✓ PASSED\n")
	} else {
		b.WriteString("VALIDATION: ✗ FAILED\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON renders the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
