// Package updater schedules background refreshes of upstream entities.
//
// Each entity type owns one Scheduler: a pending queue, an inbox channel that
// producers publish into, and a recurring loop that drains at most one
// request per interval. Refreshes of one type never overlap; different types
// run independently.
package updater

import (
	"encoding/json"
	"fmt"

	"muniapi/pkg/domain"
)

// Request asks for one entity to be re-fetched. Two requests are the same
// queue entry when their targets are equal; Priority and Parent do not take
// part in identity.
type Request struct {
	Target   domain.ExternalID
	Priority bool
	// Parent is the owning context the target was discovered under, e.g. the
	// organization whose site lists the page.
	Parent *domain.ExternalID
}

// NewRequest builds a non-priority request.
func NewRequest(target domain.ExternalID) Request {
	return Request{Target: target}
}

// Same reports whether r and other address the same entity.
func (r Request) Same(other Request) bool {
	return r.Target == other.Target
}

type wireRequest struct {
	Target   string `json:"target"`
	Priority bool   `json:"priority,omitempty"`
	Parent   string `json:"parent,omitempty"`
}

// MarshalJSON encodes ids by their key form so messages stay readable on the wire.
func (r Request) MarshalJSON() ([]byte, error) {
	w := wireRequest{Target: r.Target.Key(), Priority: r.Priority}
	if r.Parent != nil {
		w.Parent = r.Parent.Key()
	}
	return json.Marshal(w)
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode update request: %w", err)
	}
	target, err := domain.ParseExternalKey(w.Target)
	if err != nil {
		return err
	}
	out := Request{Target: target, Priority: w.Priority}
	if w.Parent != "" {
		parent, err := domain.ParseExternalKey(w.Parent)
		if err != nil {
			return err
		}
		out.Parent = &parent
	}
	*r = out
	return nil
}
