// Package oncall looks up who is on call. Rotation itself is computed elsewhere.
package oncall

import (
	"context"
	"errors"

	"github.com/akmatori/incidentd/internal/queue"
	"github.com/akmatori/incidentd/internal/utils"
)

// ErrEngineerNotFound is returned when an email is not in the roster
var ErrEngineerNotFound = errors.New("engineer not found")

// Engineer is a responder
type Engineer struct {
	ID    string `json:"id,omitempty" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
	Phone string `json:"phone,omitempty" yaml:"phone"`
}

// Contact converts the engineer to its notification form
func (e Engineer) Contact() queue.Contact {
	return queue.Contact{ID: e.ID, Name: e.Name, Email: e.Email, Phone: e.Phone}
}

// Rotation names the current primary and secondary responders by email.
// Either may be empty.
type Rotation struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// Provider is the on-call collaborator
type Provider interface {
	PrimaryAndSecondary(ctx context.Context) (Rotation, error)
	Engineer(ctx context.Context, email string) (*Engineer, error)
}

// ResolveContact looks up email in p and falls back to a contact built from
// the address alone when the lookup fails
func ResolveContact(ctx context.Context, p Provider, email string) queue.Contact {
	if p != nil {
		if e, err := p.Engineer(ctx, email); err == nil && e != nil {
			return e.Contact()
		}
	}
	return queue.Contact{Email: email, Name: utils.LocalPart(email)}
}
