// Package events defines the canonical mutation-event schema the commerce
// module publishes and the sync service consumes. Events are a closed tagged
// union of action x source kind, validated exhaustively at the boundary —
// never a loosely-typed bag sniffed at runtime.
package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action represents the type of mutation. Values are lowercase to match the
// subject scheme.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// IsValid checks if the action is a known valid action.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return true
	default:
		return false
	}
}

// SourceKind identifies the mutated source entity. Variants and inventory
// levels are sub-entities: the incremental workflow resolves them to the
// document's primary unit before syncing.
type SourceKind string

const (
	SourceProduct        SourceKind = "product"
	SourceVariant        SourceKind = "variant"
	SourceCustomer       SourceKind = "customer"
	SourceInventoryLevel SourceKind = "inventory-level"
)

// IsValid checks if the source kind is a known valid kind.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceProduct, SourceVariant, SourceCustomer, SourceInventoryLevel:
		return true
	default:
		return false
	}
}

// SubjectPrefix is the root of the mutation-event subject space.
const SubjectPrefix = "catalog"

// Event is one entity mutation notification, delivered at least once with no
// ordering guarantee across ids. Embedded payload data is deliberately
// absent: consumers must re-read the fresh record from the source of truth.
type Event struct {
	// EventID uniquely identifies the notification for logging.
	EventID string `json:"eventId"`

	// ID is the mutated entity's primary key. For inventory-level events it
	// is the owning inventory item id.
	ID string `json:"id"`

	// ParentID optionally carries a pre-resolved parent (a variant's
	// product). Consumers fall back to a source lookup when empty.
	ParentID string `json:"parentId,omitempty"`

	Kind   SourceKind `json:"kind"`
	Action Action     `json:"action"`

	// Timestamp is the publish time in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// NewEvent creates an event with a fresh id and the current timestamp.
func NewEvent(kind SourceKind, action Action, id string) Event {
	return Event{
		EventID:   uuid.NewString(),
		ID:        id,
		Kind:      kind,
		Action:    action,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Validate checks the event against the closed union.
func (e Event) Validate() error {
	if !e.Kind.IsValid() {
		return fmt.Errorf("unknown source kind %q", e.Kind)
	}
	if !e.Action.IsValid() {
		return fmt.Errorf("unknown action %q", e.Action)
	}
	if e.ID == "" {
		return fmt.Errorf("event has no entity id")
	}
	return nil
}

// Subject returns the NATS subject for the event: catalog.<kind>.<action>.
func (e Event) Subject() string {
	return SubjectPrefix + "." + string(e.Kind) + "." + string(e.Action)
}

// ParseSubject extracts the source kind and action from a subject.
func ParseSubject(subject string) (SourceKind, Action, error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[0] != SubjectPrefix {
		return "", "", fmt.Errorf("malformed subject %q", subject)
	}

	kind, action := SourceKind(parts[1]), Action(parts[2])
	if !kind.IsValid() {
		return "", "", fmt.Errorf("unknown source kind in subject %q", subject)
	}
	if !action.IsValid() {
		return "", "", fmt.Errorf("unknown action in subject %q", subject)
	}
	return kind, action, nil
}
