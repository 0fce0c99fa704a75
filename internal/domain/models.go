package domain

import "time"

// ResultRecord is a reported CheckResult as the stores keep it.
type ResultRecord struct {
	Label       string    `json:"label"`
	ClientID    string    `json:"client_id"`
	Outcome     Outcome   `json:"outcome"`
	Description string    `json:"description,omitempty"`
	Tags        Tags      `json:"tags"`
	CheckedAt   time.Time `json:"checked_at"`
}

func (r ResultRecord) Up() bool { return r.Outcome == Success }

func NewRecord(label, clientID string, res CheckResult, at time.Time) ResultRecord {
	return ResultRecord{
		Label:       label,
		ClientID:    clientID,
		Outcome:     res.Outcome,
		Description: res.Description,
		Tags:        res.Tags.Clone(),
		CheckedAt:   at.UTC(),
	}
}
