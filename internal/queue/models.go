package queue

import (
	"strings"
	"time"
)

// Status is a human-readable status code. The canonical identifier lives in
// the status_values table and is resolved through the catalog; codes stay on
// the wire and in filters so operators can read them.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusCompleted  Status = "completed"
	StatusReturned   Status = "returned"
	StatusBlocked    Status = "blocked"
)

var allStatuses = []Status{
	StatusQueued,
	StatusInProgress,
	StatusInReview,
	StatusCompleted,
	StatusReturned,
	StatusBlocked,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of canonical statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Statuses converts a string slice into Status values without validation.
// Preference records may carry deployment-specific codes beyond the
// canonical set; the catalog is the authority on what resolves.
func Statuses(values []string) []Status {
	out := make([]Status, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		out = append(out, Status(v))
	}
	return out
}

// Queue is a named bucket of items at one segment and status.
type Queue struct {
	ID        int64
	Segment   string
	Status    Status
	Owner     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is one unit of pipeline work.
type Item struct {
	ID             int64
	QueueID        int64
	Segment        string // joined from the owning queue
	ExternalRef    string
	Title          string
	Priority       int
	Payload        string
	CreatedBy      string
	AssignedTo     string
	DueAt          *time.Time
	LockedUntil    *time.Time
	CurrentStateID int64
	Status         Status
	StatusValueID  int64
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Locked reports whether the item advertises a live lease at the given time.
// Advisory only; the version guard is the correctness backstop.
func (i *Item) Locked(now time.Time) bool {
	return i.LockedUntil != nil && i.LockedUntil.After(now)
}

// ItemState is one append-only history row.
type ItemState struct {
	ID            int64
	ItemID        int64
	Actor         string
	Status        Status
	StatusValueID int64
	Note          string
	Metadata      string
	CreatedAt     time.Time
}

// LockScope distinguishes queue-wide from item leases.
type LockScope string

const (
	ScopeQueue LockScope = "queue"
	ScopeItem  LockScope = "item"
)

// Lock is a TTL-bounded exclusive claim on a queue or item.
type Lock struct {
	ID        int64
	Scope     LockScope
	TargetID  int64
	Owner     string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the lock's TTL has passed at the given time.
func (l *Lock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// Agent is a worker identity.
type Agent struct {
	ID     string
	Name   string
	Active bool
}

// Preference is an agent's routing configuration.
type Preference struct {
	AgentID              string
	PrimarySegments      []string
	FallbackSegments     []string
	PickupStatuses       []Status
	ActiveStatuses       []Status
	AcceptStatus         Status
	ReturnStatus         Status
	MaxInProgressMinutes int
}

// HandoffRule declares a successor segment for completed work.
// A nil Status matches any status (wildcard).
type HandoffRule struct {
	ID             int64
	CurrentSegment string
	Status         *Status
	NextSegment    string
	TemplateCodes  []string
	Note           string
}

// TemplateKind partitions attached reference material.
type TemplateKind string

const (
	TemplatePrimary   TemplateKind = "primary"
	TemplateChecklist TemplateKind = "checklist"
	TemplateReference TemplateKind = "reference"
)

// Template is reference material attached to an item.
type Template struct {
	ID        int64
	ItemID    int64
	Code      string
	Kind      TemplateKind
	URI       string
	CreatedAt time.Time
}

// Artifact is a deliverable submitted against an item.
type Artifact struct {
	ID          int64
	ItemID      int64
	Code        string
	URI         string
	SubmittedBy string
	CreatedAt   time.Time
}

// Activity is one activity-log entry.
type Activity struct {
	ID         int64
	Actor      string
	EntityType string
	EntityID   int64
	EventType  string
	Payload    string
	CreatedAt  time.Time
}

// HealthSummary describes aggregated item counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Queued    int
	Active    int
	Completed int
	Returned  int
	Blocked   int
}
