// Package lifecycle enumerates the status values of every BookOn entity kind and
// the actions that move an entity from one status to the next.
package lifecycle

import "fmt"

// Kind identifies an entity family with its own status table.
type Kind string

const (
	KindTemplate     Kind = "template"
	KindCourse       Kind = "course"
	KindBroadcast    Kind = "broadcast"
	KindRegister     Kind = "register"
	KindNotification Kind = "notification"
)

// Template statuses.
const (
	TemplateActive   = "active"
	TemplateInactive = "inactive"
	TemplateArchived = "archived"
)

// Course statuses.
const (
	CourseDraft     = "draft"
	CoursePublished = "published"
	CourseArchived  = "archived"
)

// Broadcast statuses.
const (
	BroadcastDraft     = "draft"
	BroadcastScheduled = "scheduled"
	BroadcastSending   = "sending"
	BroadcastPaused    = "paused"
	BroadcastSent      = "sent"
	BroadcastFailed    = "failed"
)

// Register statuses.
const (
	RegisterUpcoming   = "upcoming"
	RegisterInProgress = "in-progress"
	RegisterCompleted  = "completed"
	RegisterCancelled  = "cancelled"
)

// Notification statuses.
const (
	NotificationUnread   = "unread"
	NotificationRead     = "read"
	NotificationArchived = "archived"
)

// Action names.
const (
	ActionActivate   = "activate"
	ActionDeactivate = "deactivate"
	ActionArchive    = "archive"
	ActionUnarchive  = "unarchive"
	ActionPublish    = "publish"
	ActionSchedule   = "schedule"
	ActionUnschedule = "unschedule"
	ActionSend       = "send"
	ActionPause      = "pause"
	ActionResume     = "resume"
	ActionComplete   = "complete"
	ActionFail       = "fail"
	ActionStart      = "start"
	ActionCancel     = "cancel"
	ActionRead       = "read"
	ActionUnread     = "unread"
)

// Action is a legal move out of a status.
type Action struct {
	Name   string `json:"action"`
	Result string `json:"resultingStatus"`
	// System actions are performed by background workers, never offered to users.
	System bool `json:"-"`
}

type table struct {
	transitions map[string][]Action
	terminal    map[string]bool
}

var tables = map[Kind]table{
	KindTemplate: {
		transitions: map[string][]Action{
			TemplateActive: {
				{Name: ActionDeactivate, Result: TemplateInactive},
				{Name: ActionArchive, Result: TemplateArchived},
			},
			TemplateInactive: {
				{Name: ActionActivate, Result: TemplateActive},
				{Name: ActionArchive, Result: TemplateArchived},
			},
			// archived templates may be restored explicitly
			TemplateArchived: {
				{Name: ActionUnarchive, Result: TemplateInactive},
			},
		},
		terminal: map[string]bool{TemplateArchived: true},
	},
	KindCourse: {
		transitions: map[string][]Action{
			CourseDraft:     {{Name: ActionPublish, Result: CoursePublished}},
			CoursePublished: {{Name: ActionArchive, Result: CourseArchived}},
			CourseArchived:  nil,
		},
		terminal: map[string]bool{CourseArchived: true},
	},
	KindBroadcast: {
		transitions: map[string][]Action{
			BroadcastDraft: {
				{Name: ActionSchedule, Result: BroadcastScheduled},
				{Name: ActionSend, Result: BroadcastSending},
			},
			BroadcastScheduled: {
				{Name: ActionSend, Result: BroadcastSending},
				{Name: ActionUnschedule, Result: BroadcastDraft},
			},
			BroadcastSending: {
				{Name: ActionPause, Result: BroadcastPaused},
				{Name: ActionComplete, Result: BroadcastSent, System: true},
				{Name: ActionFail, Result: BroadcastFailed, System: true},
			},
			BroadcastPaused: {
				{Name: ActionResume, Result: BroadcastSending},
				{Name: ActionFail, Result: BroadcastFailed, System: true},
			},
			BroadcastSent:   nil,
			BroadcastFailed: nil,
		},
		terminal: map[string]bool{BroadcastSent: true, BroadcastFailed: true},
	},
	KindRegister: {
		transitions: map[string][]Action{
			RegisterUpcoming: {
				{Name: ActionStart, Result: RegisterInProgress},
				{Name: ActionCancel, Result: RegisterCancelled},
			},
			RegisterInProgress: {{Name: ActionComplete, Result: RegisterCompleted}},
			RegisterCompleted:  nil,
			RegisterCancelled:  nil,
		},
		terminal: map[string]bool{RegisterCompleted: true, RegisterCancelled: true},
	},
	KindNotification: {
		transitions: map[string][]Action{
			NotificationUnread: {
				{Name: ActionRead, Result: NotificationRead},
				{Name: ActionArchive, Result: NotificationArchived},
			},
			NotificationRead: {
				{Name: ActionUnread, Result: NotificationUnread},
				{Name: ActionArchive, Result: NotificationArchived},
			},
			NotificationArchived: nil,
		},
		terminal: map[string]bool{NotificationArchived: true},
	},
}

// InvalidStateError reports a (kind, status) pair that is not part of any table.
// Callers should treat it as a display bug rather than retry.
type InvalidStateError struct {
	Kind   Kind
	Status string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("lifecycle: unknown status %q for %s", e.Status, e.Kind)
}

// InvalidTransitionError reports an action that is not legal from the current status.
type InvalidTransitionError struct {
	Kind   Kind
	Status string
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("lifecycle: cannot %s a %s %s", e.Action, e.Status, e.Kind)
}

// Actions returns the ordered list of legal actions for the given status,
// including system actions. Terminal statuses return an empty list.
func Actions(kind Kind, status string) ([]Action, error) {
	t, ok := tables[kind]
	if !ok {
		return nil, &InvalidStateError{Kind: kind, Status: status}
	}
	actions, ok := t.transitions[status]
	if !ok {
		return nil, &InvalidStateError{Kind: kind, Status: status}
	}
	out := make([]Action, len(actions))
	copy(out, actions)
	return out, nil
}

// UserActions is Actions without the system-only entries.
func UserActions(kind Kind, status string) ([]Action, error) {
	actions, err := Actions(kind, status)
	if err != nil {
		return nil, err
	}
	out := actions[:0]
	for _, a := range actions {
		if !a.System {
			out = append(out, a)
		}
	}
	return out, nil
}

// Next resolves the status reached by applying action from status.
func Next(kind Kind, status, action string) (string, error) {
	actions, err := Actions(kind, status)
	if err != nil {
		return "", err
	}
	for _, a := range actions {
		if a.Name == action {
			return a.Result, nil
		}
	}
	return "", &InvalidTransitionError{Kind: kind, Status: status, Action: action}
}

// IsTerminal reports whether status ends the entity's lifecycle.
func IsTerminal(kind Kind, status string) bool {
	t, ok := tables[kind]
	if !ok {
		return false
	}
	return t.terminal[status]
}

// Statuses lists every known status for kind.
func Statuses(kind Kind) []string {
	t, ok := tables[kind]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(t.transitions))
	for status := range t.transitions {
		out = append(out, status)
	}
	return out
}

// Valid reports whether status belongs to kind's table.
func Valid(kind Kind, status string) bool {
	t, ok := tables[kind]
	if !ok {
		return false
	}
	_, ok = t.transitions[status]
	return ok
}
