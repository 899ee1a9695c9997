// Package votes defines individual roll-call vote records and the lenient
// parsing applied to externally sourced vote values.
package votes

import "strings"

// Value is how a legislator voted on an issue.
type Value string

const (
	Yes        Value = "yes"
	No         Value = "no"
	Abstain    Value = "abstain"
	DidNotVote Value = "did_not_vote"
)

// ParseValue normalises the many spellings used by roll-call feeds. Anything
// unrecognised is treated as not having voted.
func ParseValue(s string) Value {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "yes", "yea", "aye", "for", "+", "1", "+1":
		return Yes
	case "no", "nay", "against", "-", "-1":
		return No
	case "abstain", "abstention", "present", "0":
		return Abstain
	default:
		return DidNotVote
	}
}

// Cast reports whether the value is a recorded position (yes, no or abstain).
func (v Value) Cast() bool {
	return v == Yes || v == No || v == Abstain
}

// Encode maps the value onto the matrix encoding. Abstaining and not voting
// share the neutral 0.
func (v Value) Encode() float64 {
	switch v {
	case Yes:
		return 1
	case No:
		return -1
	default:
		return 0
	}
}

func (v Value) String() string {
	return string(v)
}

// Record is a single legislator's position on a single issue.
type Record struct {
	LegislatorID string `json:"legislatorId"`
	IssueID      string `json:"issueId"`
	Value        Value  `json:"value"`
}

// Legislator is the roster entry used to attach a group label to records.
type Legislator struct {
	ID    string `json:"id"`
	Group string `json:"group"`
}

// Dataset is a full snapshot of the voting data.
type Dataset struct {
	Legislators []Legislator `json:"legislators"`
	Records     []Record     `json:"votes"`
}

// Groups indexes the roster by legislator id.
func (d Dataset) Groups() map[string]string {
	groups := make(map[string]string, len(d.Legislators))
	for _, l := range d.Legislators {
		groups[l.ID] = l.Group
	}
	return groups
}
