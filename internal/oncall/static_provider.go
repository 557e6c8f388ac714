package oncall

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Roster is the YAML file format of the static provider:
//
//	engineers:
//	  - name: Alice
//	    email: alice@example.com
//	    phone: "+15550100"
//	  - name: Bob
//	    email: bob@example.com
type Roster struct {
	Engineers []Engineer `yaml:"engineers"`
}

// StaticProvider serves a fixed roster. The first engineer is primary and
// the second is secondary.
type StaticProvider struct {
	engineers []Engineer
}

// NewStaticProvider creates a provider over engineers
func NewStaticProvider(engineers []Engineer) *StaticProvider {
	return &StaticProvider{engineers: engineers}
}

// LoadRoster reads a YAML roster file
func LoadRoster(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read on-call roster: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster parses YAML roster content
func ParseRoster(data []byte) (*StaticProvider, error) {
	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to parse on-call roster: %w", err)
	}
	for i, e := range roster.Engineers {
		if e.Email == "" {
			return nil, fmt.Errorf("roster entry %d has no email", i)
		}
	}
	return NewStaticProvider(roster.Engineers), nil
}

// PrimaryAndSecondary returns the first two roster entries
func (p *StaticProvider) PrimaryAndSecondary(_ context.Context) (Rotation, error) {
	var r Rotation
	if len(p.engineers) > 0 {
		r.Primary = p.engineers[0].Email
	}
	if len(p.engineers) > 1 {
		r.Secondary = p.engineers[1].Email
	}
	return r, nil
}

// Engineer finds a roster entry by email, case-insensitively
func (p *StaticProvider) Engineer(_ context.Context, email string) (*Engineer, error) {
	for i := range p.engineers {
		if strings.EqualFold(p.engineers[i].Email, email) {
			e := p.engineers[i]
			return &e, nil
		}
	}
	return nil, ErrEngineerNotFound
}
