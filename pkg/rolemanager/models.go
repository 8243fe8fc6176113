package rolemanager

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RightType distinguishes boolean rights from numeric range rights.
type RightType string

const (
	RightTypeBoolean RightType = "boolean"
	RightTypeRange   RightType = "range"
)

// User is an authenticatable subject. Login and Email are independent
// unique natural keys; PasswordHash is opaque to the engine (see pkg/password).
type User struct {
	ID           int64     `json:"id" db:"id"`
	Login        string    `json:"login" db:"login"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"first_name,omitempty" db:"first_name"`
	LastName     string    `json:"last_name,omitempty" db:"last_name"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// AuthenticatedUser is the non-secret subset returned by Authenticate.
type AuthenticatedUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Group is a named collection of users, organized as a DAG via GroupEdge.
type Group struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// GroupEdge is a directed parent/child relationship between two groups.
// The child inherits everything granted to the parent (and its ancestors).
type GroupEdge struct {
	ParentGroupID int64 `json:"parent_group_id" db:"parent_group_id"`
	ChildGroupID  int64 `json:"child_group_id" db:"child_group_id"`
}

// RightGroup organizes rights for administrative display purposes.
type RightGroup struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// RightTypeRange bounds the legal values for a range right.
type RightTypeRange struct {
	ID       int64           `json:"id" db:"id"`
	Name     string          `json:"name" db:"name"`
	MinValue decimal.Decimal `json:"min_value" db:"min_value"`
	MaxValue decimal.Decimal `json:"max_value" db:"max_value"`
}

// Right is an atomic permission, either boolean or a named numeric range.
type Right struct {
	ID               int64     `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	RightGroupID     int64     `json:"rightgroup_id" db:"rightgroup_id"`
	Type             RightType `json:"type" db:"type"`
	RightTypeRangeID *int64    `json:"righttype_range_id,omitempty" db:"righttype_range_id"`
}

// Role is a reusable named template of (right, value) pairs.
type Role struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// RoleRight attaches a right to a role, with the granted value for range rights.
type RoleRight struct {
	RoleID     int64            `json:"role_id" db:"role_id"`
	RightID    int64            `json:"right_id" db:"right_id"`
	RangeValue *decimal.Decimal `json:"range_value,omitempty" db:"range_value"`
}

// Context is a named scope within which role assignments are evaluated.
// The Global Context is represented by a nil *Context / nil context id.
type Context struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// UserContextRole assigns a role to a user, optionally scoped to a context.
// ContextID == nil means the Global Context.
type UserContextRole struct {
	UserID    int64  `json:"user_id" db:"user_id"`
	ContextID *int64 `json:"context_id,omitempty" db:"context_id"`
	RoleID    int64  `json:"role_id" db:"role_id"`
}

// GroupContextRole assigns a role to a group, optionally scoped to a context.
type GroupContextRole struct {
	GroupID   int64  `json:"group_id" db:"group_id"`
	ContextID *int64 `json:"context_id,omitempty" db:"context_id"`
	RoleID    int64  `json:"role_id" db:"role_id"`
}

// SourceKind identifies whether a candidate rule reached the user directly
// or through group membership.
type SourceKind string

const (
	SourceUser  SourceKind = "user"
	SourceGroup SourceKind = "group"
)

// ContextKind identifies whether a candidate's context is the Global
// Context or a specific named context.
type ContextKind string

const (
	ContextGlobal   ContextKind = "global"
	ContextSpecific ContextKind = "specific"
)

// Candidate is a single rule that might grant a right, as produced by the
// enumerator and consumed by the specificity ranker.
type Candidate struct {
	SourceKind         SourceKind
	SourceID           int64
	SourceDisplayName  string
	RoleName           string
	ContextKind        ContextKind
	ContextDisplayName string
	RightName          string
	RightType          RightType
	RangeValue         *decimal.Decimal
	Distance           int
}

// ResolvedRight is the value a winning candidate grants for one right.
type ResolvedRight struct {
	RightName  string          `json:"right_name"`
	RightType  RightType       `json:"right_type"`
	Value      bool            `json:"-"`
	RangeValue decimal.Decimal `json:"-"`
}

// MarshalJSON renders a boolean right as its bool value and a range right
// as its decimal value, so API consumers see one natural JSON shape per
// right instead of two always-present fields, only one of which applies.
func (r ResolvedRight) MarshalJSON() ([]byte, error) {
	type wire struct {
		RightName string      `json:"right_name"`
		RightType RightType   `json:"right_type"`
		Value     interface{} `json:"value"`
	}
	w := wire{RightName: r.RightName, RightType: r.RightType}
	if r.RightType == RightTypeRange {
		w.Value = r.RangeValue
	} else {
		w.Value = r.Value
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON, used when reading a
// ResolvedRight back out of the Redis L2 cache backend.
func (r *ResolvedRight) UnmarshalJSON(data []byte) error {
	var w struct {
		RightName string          `json:"right_name"`
		RightType RightType       `json:"right_type"`
		Value     json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.RightName = w.RightName
	r.RightType = w.RightType
	if w.RightType == RightTypeRange {
		return json.Unmarshal(w.Value, &r.RangeValue)
	}
	return json.Unmarshal(w.Value, &r.Value)
}

// ResolvedRights is the fast-path resolution result: right name -> value.
// It is the unit stored in both cache levels.
type ResolvedRights map[string]ResolvedRight

// TraceStatus labels a candidate in an explain trace.
type TraceStatus string

const (
	StatusApplied    TraceStatus = "APPLIED"
	StatusOverridden TraceStatus = "OVERRIDDEN"
)

// TraceEntry annotates one candidate within an Explanation.
type TraceEntry struct {
	Source      string      `json:"source"`
	Role        string      `json:"role"`
	Context     string      `json:"context"`
	Value       interface{} `json:"value"`
	Specificity int         `json:"specificity"`
	Status      TraceStatus `json:"status"`
}

// Explanation is the diagnostic output of explainRight.
type Explanation struct {
	Decision bool         `json:"decision"`
	Value    interface{}  `json:"value"`
	Reason   string       `json:"reason"`
	Trace    []TraceEntry `json:"trace"`
}
