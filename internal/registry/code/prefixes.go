package code

import (
	"strings"

	dErrors "serialregistry/pkg/domain-errors"
)

// entityPrefix binds an entity type to its code prefix and the lifecycle
// stage its codes are issued under. Stages follow the platform's six-stage
// model: 1=Assessment, 2=Risk, 3=Compliance, 4=Resilience, 5=Excellence,
// 6=Sustainability. Entity types that exist across the whole lifecycle
// (controls, evidence, frameworks) are issued under stage 3, where their
// codes are consumed most heavily.
type entityPrefix struct {
	prefix string
	stage  int
}

var entityPrefixes = map[string]entityPrefix{
	// Stage 1: assessment and exploration
	"assessment": {prefix: "ASMT", stage: 1},
	"finding":    {prefix: "FIND", stage: 1},

	// Stage 2: risk analysis
	"risk":      {prefix: "RISK", stage: 2},
	"treatment": {prefix: "TRMT", stage: 2},
	"asset":     {prefix: "ASSET", stage: 2},

	// Stage 3: compliance monitoring
	"compliance":  {prefix: "CMPL", stage: 3},
	"requirement": {prefix: "REQ", stage: 3},
	"gap":         {prefix: "GAP", stage: 3},

	// Stage 4: resilience building
	"resilience":   {prefix: "RESL", stage: 4},
	"recoveryplan": {prefix: "RPLAN", stage: 4},

	// Stage 5: excellence and benchmarking
	"excellence":  {prefix: "EXCL", stage: 5},
	"benchmark":   {prefix: "BENCH", stage: 5},
	"improvement": {prefix: "IMPR", stage: 5},

	// Stage 6: continuous sustainability
	"sustainability": {prefix: "SUST", stage: 6},
	"kpi":            {prefix: "KPI", stage: 6},
	"certification":  {prefix: "CERT", stage: 6},

	// Cross-stage entity types
	"control":     {prefix: "CTRL", stage: 3},
	"evidence":    {prefix: "EVID", stage: 3},
	"framework":   {prefix: "FWK", stage: 3},
	"workflow":    {prefix: "WFL", stage: 3},
	"policy":      {prefix: "POL", stage: 3},
	"audit":       {prefix: "AUDIT", stage: 3},
	"report":      {prefix: "RPT", stage: 3},
	"attestation": {prefix: "ATT", stage: 3},
	"approval":    {prefix: "APPR", stage: 3},
	"vendor":      {prefix: "VND", stage: 3},
	"actionplan":  {prefix: "ACTN", stage: 3},
}

// PrefixFor maps an entity type to its code prefix. Unknown entity types
// fall back to their leading letters uppercased, so new entity types get a
// stable prefix without a registry change.
func PrefixFor(entityType string) (string, error) {
	key := normalizeEntityType(entityType)
	if key == "" {
		return "", dErrors.New(dErrors.CodeValidation, "entity type is required")
	}
	if ep, ok := entityPrefixes[key]; ok {
		return ep.prefix, nil
	}

	letters := make([]byte, 0, 10)
	for i := 0; i < len(key) && len(letters) < 10; i++ {
		if key[i] >= 'a' && key[i] <= 'z' {
			letters = append(letters, key[i]-'a'+'A')
		}
	}
	if len(letters) < 2 {
		return "", dErrors.Newf(dErrors.CodeValidation, "entity type %q cannot be mapped to a prefix", entityType)
	}
	return string(letters), nil
}

// StageFor derives the lifecycle stage for an entity type when the caller
// does not supply one. Unknown entity types default to stage 3.
func StageFor(entityType string) int {
	if ep, ok := entityPrefixes[normalizeEntityType(entityType)]; ok {
		return ep.stage
	}
	return 3
}

// KnownPrefix reports whether a prefix belongs to a registered entity type.
// Validate uses it to distinguish errors from warnings.
func KnownPrefix(prefix string) bool {
	for _, ep := range entityPrefixes {
		if ep.prefix == prefix {
			return true
		}
	}
	return false
}

func normalizeEntityType(entityType string) string {
	s := strings.ToLower(strings.TrimSpace(entityType))
	return strings.ReplaceAll(s, "_", "")
}
