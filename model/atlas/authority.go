package atlas

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// AuthorityID identifies a consensus authority (validator) within a committee.
type AuthorityID = Identifier

// Authority is a single member of the consensus committee.
type Authority struct {
	ID    AuthorityID
	Stake uint64
}

// Committee is the fixed validator set of one epoch.
type Committee struct {
	Epoch       uint64
	Authorities []Authority

	byID       map[AuthorityID]int
	totalStake uint64
}

// NewCommittee constructs a committee for the given epoch. Authorities are
// sorted by ID so that committee-derived iteration is deterministic across
// validators.
func NewCommittee(epoch uint64, authorities []Authority) (*Committee, error) {
	if len(authorities) == 0 {
		return nil, fmt.Errorf("committee must have at least one authority")
	}

	sorted := make([]Authority, len(authorities))
	copy(sorted, authorities)
	slices.SortFunc(sorted, func(a, b Authority) int {
		return slices.Compare(a.ID[:], b.ID[:])
	})

	c := &Committee{
		Epoch:       epoch,
		Authorities: sorted,
		byID:        make(map[AuthorityID]int, len(sorted)),
	}
	for i, authority := range sorted {
		if _, dup := c.byID[authority.ID]; dup {
			return nil, fmt.Errorf("duplicate authority %v", authority.ID)
		}
		if authority.Stake == 0 {
			return nil, fmt.Errorf("authority %v has zero stake", authority.ID)
		}
		c.byID[authority.ID] = i
		c.totalStake += authority.Stake
	}
	return c, nil
}

// StakeOf returns the stake of the given authority, or zero for non-members.
func (c *Committee) StakeOf(id AuthorityID) uint64 {
	i, ok := c.byID[id]
	if !ok {
		return 0
	}
	return c.Authorities[i].Stake
}

// Contains reports whether the authority is a member of the committee.
func (c *Committee) Contains(id AuthorityID) bool {
	_, ok := c.byID[id]
	return ok
}

// TotalStake returns the sum of all member stakes.
func (c *Committee) TotalStake() uint64 {
	return c.totalStake
}

// QuorumThreshold returns the minimum stake of a Byzantine quorum (2f+1 by
// stake): any two sets with at least this much stake intersect in at least
// one honest authority.
func (c *Committee) QuorumThreshold() uint64 {
	return 2*c.totalStake/3 + 1
}

// AuthoritySet is an immutable set of authority IDs. Readers hold a snapshot;
// writers publish a whole new set instead of mutating in place.
type AuthoritySet struct {
	members map[AuthorityID]struct{}
}

// NewAuthoritySet builds a set from the given IDs.
func NewAuthoritySet(ids ...AuthorityID) *AuthoritySet {
	members := make(map[AuthorityID]struct{}, len(ids))
	for _, id := range ids {
		members[id] = struct{}{}
	}
	return &AuthoritySet{members: members}
}

func (s *AuthoritySet) Contains(id AuthorityID) bool {
	if s == nil {
		return false
	}
	_, ok := s.members[id]
	return ok
}

func (s *AuthoritySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.members)
}
