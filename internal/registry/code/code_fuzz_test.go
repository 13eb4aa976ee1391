//go:build go1.18

package code

import (
	"testing"
)

// FuzzParse tests that parsing never panics on arbitrary input and that
// anything accepted renders back to exactly the input.
func FuzzParse(f *testing.F) {
	f.Add("RISK-ACME1-2-2026-000142")
	f.Add("RISK-ACME1-2-2026-000142-2")
	f.Add("CMPL-GLOB2-3-2027-000001-99")
	f.Add("")
	f.Add("RISK-ACME1-02-2026-000001")
	f.Add("RISK-ACME1-2-2026-000001-1")
	f.Add("'; DROP TABLE registry_records;--")
	f.Add("RISK-ACME1-2-2026-000001\x00")
	f.Add("----")

	codec, err := NewCodec(DefaultSequenceWidth)
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, input string) {
		parsed, err := codec.Parse(input)
		if err != nil {
			if parsed != nil {
				t.Error("error result must not carry a parsed code")
			}
			return
		}

		// Accepted input is canonical: formatting the components must
		// reproduce it byte for byte.
		rendered := codec.Format(parsed.Scope(), parsed.Sequence, parsed.Version)
		if rendered != input {
			t.Errorf("accepted %q but canonical form is %q", input, rendered)
		}
		if parsed.Version < 1 || parsed.Version > MaxVersion {
			t.Errorf("version %d outside bounds", parsed.Version)
		}
		if parsed.Stage < MinStage || parsed.Stage > MaxStage {
			t.Errorf("stage %d outside bounds", parsed.Stage)
		}
	})
}
