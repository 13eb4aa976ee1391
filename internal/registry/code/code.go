// Package code defines the serial code grammar shared by every registry
// component: PREFIX-TENANT-STAGE-YEAR-SEQUENCE[-VERSION].
//
// Example: RISK-ACME1-2-2026-000142 (version 1 is always implicit) and
// RISK-ACME1-2-2026-000142-2 for its second version.
package code

import (
	"fmt"
	"strconv"
	"strings"

	dErrors "serialregistry/pkg/domain-errors"
)

const (
	// MaxLength bounds the full rendered code.
	MaxLength = 35

	// MaxVersion bounds how many times a base code can be re-versioned.
	MaxVersion = 99

	MinYear = 2020
	MaxYear = 2100

	MinStage = 1
	MaxStage = 6

	DefaultSequenceWidth = 6
)

// reservedTenantCodes can never appear as a tenant segment, regardless of
// how a workspace was provisioned upstream.
var reservedTenantCodes = map[string]struct{}{
	"SYS":  {},
	"ADM":  {},
	"ROOT": {},
	"NULL": {},
	"TEST": {},
}

// Scope is the allocation scope: the tuple under which sequence numbers are
// issued. Two callers allocating in different scopes never contend.
type Scope struct {
	Prefix     string
	TenantCode string
	Stage      int
	Year       int
}

// Key renders the scope as a stable string, usable as a map or storage key.
func (s Scope) Key() string {
	return fmt.Sprintf("%s-%s-%d-%d", s.Prefix, s.TenantCode, s.Stage, s.Year)
}

// Parsed holds the typed components of a syntactically valid serial code.
type Parsed struct {
	Prefix     string
	TenantCode string
	Stage      int
	Year       int
	Sequence   uint64
	Version    int

	// BaseCode is the code with the version segment stripped; it names the
	// family of versions for one logical entity.
	BaseCode string
}

// Scope returns the allocation scope of the parsed code.
func (p Parsed) Scope() Scope {
	return Scope{Prefix: p.Prefix, TenantCode: p.TenantCode, Stage: p.Stage, Year: p.Year}
}

// Codec formats and parses serial codes for one deployment. The sequence
// width is fixed per deployment; changing it would change every code the
// service mints.
type Codec struct {
	seqWidth int
}

// NewCodec constructs a codec with the given sequence width.
func NewCodec(sequenceWidth int) (*Codec, error) {
	if sequenceWidth < 1 || sequenceWidth > 9 {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "sequence width must be 1-9, got %d", sequenceWidth)
	}
	return &Codec{seqWidth: sequenceWidth}, nil
}

// SequenceWidth returns the deployment's fixed sequence width.
func (c *Codec) SequenceWidth() int { return c.seqWidth }

// MaxSequence is the largest sequence number the width can render.
func (c *Codec) MaxSequence() uint64 {
	max := uint64(1)
	for range c.seqWidth {
		max *= 10
	}
	return max - 1
}

// Format renders the canonical code for the components. Version 1 is
// implicit: no version segment is emitted for it.
func (c *Codec) Format(scope Scope, sequence uint64, version int) string {
	base := c.FormatBase(scope, sequence)
	if version <= 1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, version)
}

// FormatBase renders the base code (no version segment) for the components.
func (c *Codec) FormatBase(scope Scope, sequence uint64) string {
	return fmt.Sprintf("%s-%s-%d-%d-%0*d", scope.Prefix, scope.TenantCode, scope.Stage, scope.Year, c.seqWidth, sequence)
}

// Parse decomposes a serial code into its typed components. Each component
// is validated against the grammar; the error names the first malformed
// component. Parse never returns a partially populated result.
func (c *Codec) Parse(raw string) (*Parsed, error) {
	if raw == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "serial code must not be empty")
	}
	if len(raw) > MaxLength {
		return nil, dErrors.Newf(dErrors.CodeValidation, "serial code exceeds %d characters", MaxLength)
	}

	parts := strings.Split(raw, "-")
	if len(parts) != 5 && len(parts) != 6 {
		return nil, dErrors.New(dErrors.CodeValidation, "serial code must have 5 segments plus an optional version segment")
	}

	prefix := parts[0]
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}

	tenant := parts[1]
	if err := ValidateTenantCode(tenant); err != nil {
		return nil, err
	}

	stage, err := parseStage(parts[2])
	if err != nil {
		return nil, err
	}

	year, err := parseYear(parts[3])
	if err != nil {
		return nil, err
	}

	sequence, err := c.parseSequence(parts[4])
	if err != nil {
		return nil, err
	}

	version := 1
	if len(parts) == 6 {
		version, err = parseVersion(parts[5])
		if err != nil {
			return nil, err
		}
	}

	scope := Scope{Prefix: prefix, TenantCode: tenant, Stage: stage, Year: year}
	return &Parsed{
		Prefix:     prefix,
		TenantCode: tenant,
		Stage:      stage,
		Year:       year,
		Sequence:   sequence,
		Version:    version,
		BaseCode:   c.FormatBase(scope, sequence),
	}, nil
}

// ValidateTenantCode checks the tenant segment: 3-6 uppercase alphanumeric
// characters, not one of the reserved platform codes.
func ValidateTenantCode(tenant string) error {
	if len(tenant) < 3 || len(tenant) > 6 {
		return dErrors.New(dErrors.CodeValidation, "tenant code must be 3-6 characters")
	}
	for _, r := range tenant {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return dErrors.New(dErrors.CodeValidation, "tenant code must be uppercase alphanumeric")
		}
	}
	if _, ok := reservedTenantCodes[tenant]; ok {
		return dErrors.Newf(dErrors.CodeValidation, "tenant code %s is reserved", tenant)
	}
	return nil
}

func validatePrefix(prefix string) error {
	if len(prefix) < 2 || len(prefix) > 10 {
		return dErrors.New(dErrors.CodeValidation, "prefix must be 2-10 characters")
	}
	for _, r := range prefix {
		if r < 'A' || r > 'Z' {
			return dErrors.New(dErrors.CodeValidation, "prefix must be uppercase letters")
		}
	}
	return nil
}

func parseStage(s string) (int, error) {
	// Canonical rendering is an unpadded single digit, so "02" is malformed.
	if len(s) != 1 || s[0] < '1' || s[0] > '6' {
		return 0, dErrors.New(dErrors.CodeValidation, "stage must be a digit 1-6")
	}
	return int(s[0] - '0'), nil
}

func parseYear(s string) (int, error) {
	if len(s) != 4 {
		return 0, dErrors.New(dErrors.CodeValidation, "year must be 4 digits")
	}
	year, err := strconv.Atoi(s)
	if err != nil || s[0] == '0' {
		return 0, dErrors.New(dErrors.CodeValidation, "year must be 4 digits")
	}
	return year, nil
}

func (c *Codec) parseSequence(s string) (uint64, error) {
	if len(s) != c.seqWidth {
		return 0, dErrors.Newf(dErrors.CodeValidation, "sequence must be exactly %d digits", c.seqWidth)
	}
	seq, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeValidation, "sequence must be exactly %d digits", c.seqWidth)
	}
	if seq == 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "sequence must be greater than zero")
	}
	return seq, nil
}

func parseVersion(s string) (int, error) {
	// Version 1 is always implicit, so an explicit version segment must be
	// 2 or higher with no leading zeros.
	if s == "" || s[0] == '0' {
		return 0, dErrors.New(dErrors.CodeValidation, "version segment must be an unpadded integer 2 or higher")
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 2 {
		return 0, dErrors.New(dErrors.CodeValidation, "version segment must be an unpadded integer 2 or higher")
	}
	if v > MaxVersion {
		return 0, dErrors.Newf(dErrors.CodeValidation, "version must not exceed %d", MaxVersion)
	}
	return v, nil
}
