package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action names the mutating registry operation an entry records. Read-only
// operations (validate, lookups, search) leave no trail.
type Action string

const (
	ActionGenerate Action = "generate"
	ActionVersion  Action = "version"
	ActionVoid     Action = "void"
	ActionReserve  Action = "reserve"
	ActionConfirm  Action = "confirm"
	ActionCancel   Action = "cancel"
	ActionExpire   Action = "expire"
)

// Entry is one immutable line of the registry's audit trail. Entries are
// append-only: never updated, never deleted.
type Entry struct {
	ID              uuid.UUID         `json:"id"`
	Action          Action            `json:"action"`
	ActorUserID     string            `json:"actor_user_id"`
	ActorTenantCode string            `json:"actor_tenant_code"`
	IPAddress       string            `json:"ip_address,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	RelatedBaseCode string            `json:"related_base_code,omitempty"`
	Details         map[string]string `json:"details,omitempty"`
}

// SearchCriteria filters audit entries. Zero values mean "no filter".
type SearchCriteria struct {
	Action          Action
	ActorUserID     string
	ActorTenantCode string
	RelatedBaseCode string
	After           time.Time
	Before          time.Time

	Limit  int
	Offset int
}

// Normalize clamps pagination to sane bounds.
func (c *SearchCriteria) Normalize() {
	if c.Limit <= 0 {
		c.Limit = 100
	}
	if c.Limit > 500 {
		c.Limit = 500
	}
	if c.Offset < 0 {
		c.Offset = 0
	}
}
