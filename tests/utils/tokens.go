package testutil

import (
	"errors"
	"fmt"
	"time"
)

// TokenPlan describes a batch of test identities spread over organizations.
type TokenPlan struct {
	Users      int
	UserPrefix string
	FirstUser  int
	Orgs       int
	OrgPrefix  string
	TTL        time.Duration
}

// IssuedToken is one signed identity of a plan.
type IssuedToken struct {
	User  string `json:"user"`
	Org   string `json:"org"`
	Token string `json:"token"`
}

func (p TokenPlan) validate() error {
	switch {
	case p.Users < 1:
		return errors.New("users must be at least 1")
	case p.FirstUser < 1:
		return errors.New("first user index must be at least 1")
	case p.Orgs < 1:
		return errors.New("orgs must be at least 1")
	case p.Orgs > p.Users:
		return fmt.Errorf("%d orgs cannot be filled by %d users", p.Orgs, p.Users)
	case p.TTL <= 0:
		return errors.New("ttl must be positive")
	}
	return nil
}

func numbered(prefix string, n, total int) string {
	if total == 1 {
		return prefix
	}
	return fmt.Sprintf("%s-%d", prefix, n)
}

// IssueTokens signs one token per user. Users are dealt round-robin over the
// plan's organizations so every org gets a share of the load.
func IssueTokens(secret []byte, plan TokenPlan) ([]IssuedToken, error) {
	if err := plan.validate(); err != nil {
		return nil, err
	}
	out := make([]IssuedToken, 0, plan.Users)
	for i := 0; i < plan.Users; i++ {
		user := numbered(plan.UserPrefix, plan.FirstUser+i, plan.Users)
		org := numbered(plan.OrgPrefix, i%plan.Orgs+1, plan.Orgs)
		tok, err := SignedToken(secret, user, org, plan.TTL)
		if err != nil {
			return nil, fmt.Errorf("sign token for %s: %w", user, err)
		}
		out = append(out, IssuedToken{User: user, Org: org, Token: tok})
	}
	return out, nil
}

// ByOrg groups issued tokens by organization, keeping issue order.
func ByOrg(tokens []IssuedToken) map[string][]string {
	sets := make(map[string][]string)
	for _, t := range tokens {
		sets[t.Org] = append(sets[t.Org], t.Token)
	}
	return sets
}
