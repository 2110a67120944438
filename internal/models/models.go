package models

import "time"

type Request struct {
	ID          string         `json:"id"`
	ServiceType string         `json:"service_type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	RequestedBy string         `json:"requested_by"`
	Status      Status         `json:"status"`
	AssignedTo  *string        `json:"assigned_to"`
	HandledBy   *string        `json:"handled_by"`
	Details     string         `json:"details,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	UpdatedBy   *string        `json:"updated_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	AssignedAt  *time.Time     `json:"assigned_at"`
	Comments    []Comment      `json:"comments"`
}

// Consistent reports whether the assignment invariant holds: a request has
// an assignee exactly when it is in the assigned state.
func (r Request) Consistent() bool {
	return (r.AssignedTo != nil) == (r.Status == StatusAssigned)
}

type Comment struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"request_id"`
	AuthorID         string    `json:"author_id"`
	Text             string    `json:"text"`
	IsSendBackReason bool      `json:"is_send_back_reason"`
	CreatedAt        time.Time `json:"created_at"`
}

type NewRequest struct {
	ServiceType string         `json:"service_type" validate:"required,max=64"`
	Title       string         `json:"title" validate:"required,max=200"`
	Description string         `json:"description" validate:"max=5000"`
	RequestedBy string         `json:"requested_by" validate:"required"`
	Data        map[string]any `json:"data"`
}

// RequestFields holds the editable, non-lifecycle fields of a request. Nil
// fields are left untouched; Data is merged key by key.
type RequestFields struct {
	Title       *string        `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string        `json:"description,omitempty" validate:"omitempty,max=5000"`
	Data        map[string]any `json:"data,omitempty"`
}

func (f RequestFields) Empty() bool {
	return f.Title == nil && f.Description == nil && len(f.Data) == 0
}

// StatusExtra carries the optional fields of a status update.
type StatusExtra struct {
	AssignedTo *string `json:"assigned_to,omitempty"`
	Details    string  `json:"details,omitempty"`

	// AssignedBefore restricts the update to a request that is still assigned
	// with an assigned_at earlier than this time.
	AssignedBefore *time.Time `json:"-"`
}

// Assignee is the agent an update to assigned gives the request to:
// AssignedTo when set, otherwise the acting agent.
func (e StatusExtra) Assignee(actorID string) string {
	if e.AssignedTo != nil && *e.AssignedTo != "" {
		return *e.AssignedTo
	}
	return actorID
}

const (
	StrategyRoundRobin  = "round_robin"
	StrategyLeastLoaded = "least_loaded"
)

type RoutingRule struct {
	ServiceType       string    `json:"service_type" yaml:"service_type" validate:"required,max=64"`
	IsActive          bool      `json:"is_active" yaml:"is_active"`
	AutoAssign        bool      `json:"auto_assign" yaml:"auto_assign"`
	AssignedUsers     []string  `json:"assigned_users" yaml:"assigned_users"`
	Strategy          string    `json:"strategy" yaml:"strategy" validate:"omitempty,oneof=round_robin least_loaded"`
	LastAssignedAgent *string   `json:"last_assigned_agent,omitempty" yaml:"-"`
	UpdatedAt         time.Time `json:"updated_at" yaml:"-"`
}

// HasUser reports whether agentID is in the rule's assigned users.
func (r RoutingRule) HasUser(agentID string) bool {
	for _, u := range r.AssignedUsers {
		if u == agentID {
			return true
		}
	}
	return false
}

// Eligible reports whether agentID may claim work of this rule's service type.
func (r RoutingRule) Eligible(agentID string) bool {
	return r.IsActive && r.HasUser(agentID)
}

type HistoryEntry struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorID    string    `json:"actor_id"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type TaskQueues struct {
	Available []Request `json:"available"`
	Assigned  []Request `json:"assigned"`
	Submitted []Request `json:"submitted"`
	SentBack  []Request `json:"sent_back"`
}

func EmptyQueues() TaskQueues {
	return TaskQueues{
		Available: []Request{},
		Assigned:  []Request{},
		Submitted: []Request{},
		SentBack:  []Request{},
	}
}
