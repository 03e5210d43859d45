package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/simforge/simforge/internal/simmodel"
)

// ReviewStatus represents the review state of a compiled activity
type ReviewStatus int

const (
	ReviewPending ReviewStatus = iota
	ReviewApproved
	ReviewFlagged
)

// String returns the string representation of ReviewStatus
func (s ReviewStatus) String() string {
	switch s {
	case ReviewPending:
		return "pending"
	case ReviewApproved:
		return "approved"
	case ReviewFlagged:
		return "flagged"
	default:
		return "unknown"
	}
}

// ReviewItem represents a single compiled activity to review
type ReviewItem struct {
	Activity     string // display name (model activity ID)
	Handler      string // entity type that runs it
	Initial      bool
	Conditions   []string // rendered routing predicates
	Requirements []string // rendered resource reservations
	Inbound      []string // connections into this activity
	Outbound     []string // connections out of this activity
	Status       ReviewStatus
	Note         string // reviewer note attached on flag
}

// ReviewSession holds all items for a review
type ReviewSession struct {
	Source     string
	SessionID  string
	GateStatus string
	Items      []*ReviewItem
	CreatedAt  time.Time
}

// NewReviewSession builds a session from a compiled model document. One
// item per activity; connections are resolved per item so the browser
// pane needs no further lookups.
func NewReviewSession(source string, doc *simmodel.Document) *ReviewSession {
	session := &ReviewSession{
		Source:    source,
		Items:     make([]*ReviewItem, 0, len(doc.Model.Activities)),
		CreatedAt: time.Now(),
	}

	for _, act := range doc.Model.Activities {
		item := &ReviewItem{
			Activity: act.ID,
			Handler:  act.HandlerType,
			Initial:  act.Attributes.Initial,
			Status:   ReviewPending,
		}
		for _, c := range act.Conditions {
			item.Conditions = append(item.Conditions, conditionLine(c))
		}
		for _, r := range act.Requirements {
			item.Requirements = append(item.Requirements, requirementLine(r))
		}
		for _, conn := range doc.Model.Connections {
			switch act.ID {
			case conn.To:
				item.Inbound = append(item.Inbound, connectionLine(conn))
			case conn.From:
				item.Outbound = append(item.Outbound, connectionLine(conn))
			}
		}
		session.Items = append(session.Items, item)
	}

	return session
}

// Tally counts items per review status.
type Tally struct {
	Total    int
	Approved int
	Flagged  int
	Pending  int
}

// Tally counts the session's decisions so far.
func (s *ReviewSession) Tally() Tally {
	t := Tally{Total: len(s.Items)}
	for _, item := range s.Items {
		switch item.Status {
		case ReviewApproved:
			t.Approved++
		case ReviewFlagged:
			t.Flagged++
		default:
			t.Pending++
		}
	}
	return t
}

func conditionLine(c simmodel.Condition) string {
	return fmt.Sprintf("%s = %v", c.Attribute, c.Value)
}

func requirementLine(r simmodel.Requirement) string {
	return fmt.Sprintf("reserve %d from [%s]", r.Quantity, strings.Join(r.ResourceGroups, ", "))
}

func connectionLine(conn simmodel.Connection) string {
	return fmt.Sprintf("%s -> %s  [%s]", conn.From, conn.To, conn.Type)
}

// DetailText renders the activity pane content.
func (item *ReviewItem) DetailText() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Handler:  %s\n", item.Handler)
	if item.Initial {
		b.WriteString("Initial:  yes\n")
	}

	b.WriteString("\nConditions:\n")
	if len(item.Conditions) == 0 {
		b.WriteString("  (unconditional)\n")
	}
	for _, c := range item.Conditions {
		fmt.Fprintf(&b, "  %s\n", c)
	}

	b.WriteString("\nRequirements:\n")
	if len(item.Requirements) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, r := range item.Requirements {
		fmt.Fprintf(&b, "  %s\n", r)
	}

	return b.String()
}

// ConnectionsText renders the connection browser pane content.
func (item *ReviewItem) ConnectionsText() string {
	var b strings.Builder

	b.WriteString("Inbound:\n")
	if len(item.Inbound) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, c := range item.Inbound {
		fmt.Fprintf(&b, "  %s\n", c)
	}

	b.WriteString("\nOutbound:\n")
	if len(item.Outbound) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, c := range item.Outbound {
		fmt.Fprintf(&b, "  %s\n", c)
	}

	return b.String()
}
