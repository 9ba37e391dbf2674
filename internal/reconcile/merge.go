package reconcile

import "hittracker/internal/models"

// Rule decides which side of a merge supplies a field.
type Rule int

const (
	// RemoteUnlessEmpty takes the remote value, falling back to the local
	// one when the remote value is empty.
	RemoteUnlessEmpty Rule = iota
	// RemoteAlways takes the remote value even when it is empty.
	RemoteAlways
	// LocalUnlessEmpty keeps a non-empty local value.
	LocalUnlessEmpty
)

// Field names a merged WorkItem attribute.
type Field string

const (
	FieldAssignmentID  Field = "assignment_id"
	FieldRequesterID   Field = "requester_id"
	FieldRequesterName Field = "requester_name"
	FieldTitle         Field = "title"
	FieldSource        Field = "source"
	FieldReward        Field = "reward"
	FieldAnswer        Field = "answer"
	FieldFeedback      Field = "feedback"
)

// PrecedenceTable maps fields to merge rules. State is not listed: it
// always comes from the remote record.
type PrecedenceTable map[Field]Rule

// DefaultPrecedence lets remote truth win wherever it carries a value.
var DefaultPrecedence = PrecedenceTable{
	FieldAssignmentID:  RemoteUnlessEmpty,
	FieldRequesterID:   RemoteUnlessEmpty,
	FieldRequesterName: RemoteUnlessEmpty,
	FieldTitle:         RemoteUnlessEmpty,
	FieldSource:        RemoteUnlessEmpty,
	FieldReward:        RemoteUnlessEmpty,
	FieldAnswer:        RemoteUnlessEmpty,
	FieldFeedback:      RemoteUnlessEmpty,
}

// Merge combines the stored record (nil when unknown) with a remote one
// observed while syncing date.
func Merge(local *models.WorkItem, remote models.WorkItem, date string, table PrecedenceTable) models.WorkItem {
	if table == nil {
		table = DefaultPrecedence
	}

	out := remote
	if local != nil {
		out.AssignmentID = pick(table[FieldAssignmentID], local.AssignmentID, remote.AssignmentID, emptyString)
		out.RequesterID = pick(table[FieldRequesterID], local.RequesterID, remote.RequesterID, emptyString)
		out.RequesterName = pick(table[FieldRequesterName], local.RequesterName, remote.RequesterName, emptyString)
		out.Title = pick(table[FieldTitle], local.Title, remote.Title, emptyString)
		out.Source = pick(table[FieldSource], local.Source, remote.Source, emptyString)
		out.Reward = pick(table[FieldReward], local.Reward, remote.Reward, emptyReward)
		out.Answer = pick(table[FieldAnswer], local.Answer, remote.Answer, emptyAnswer)
		out.Feedback = pick(table[FieldFeedback], local.Feedback, remote.Feedback, emptyString)
	}

	out.State = remote.State
	if out.State == models.StateApproved && out.IsZeroReward() {
		out.State = models.StatePaid
	}
	out.Date = date
	return out
}

func pick[T any](rule Rule, local, remote T, empty func(T) bool) T {
	switch rule {
	case RemoteAlways:
		return remote
	case LocalUnlessEmpty:
		if !empty(local) {
			return local
		}
		return remote
	default:
		if !empty(remote) {
			return remote
		}
		return local
	}
}

func emptyString(s string) bool { return s == "" }

func emptyReward(r *models.Reward) bool { return r == nil }

func emptyAnswer(a map[string]any) bool { return len(a) == 0 }
