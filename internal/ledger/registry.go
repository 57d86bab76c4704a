package ledger

import (
	"context"
	"time"

	"confidential-ledger/internal/cve"
)

type participant struct {
	principal    Principal
	registeredAt time.Time
	profile      profile
}

// profile holds the encrypted rollups of a participant.
type profile struct {
	totalCommitted sealed
	positionCount  sealed
}

type registry struct {
	participants map[Principal]*participant
}

func newRegistry() *registry {
	return &registry{participants: make(map[Principal]*participant)}
}

func (r *registry) lookup(p Principal) (*participant, bool) {
	part, ok := r.participants[p]
	return part, ok
}

// enroll builds a participant with encrypted zero aggregates. The registry is
// only touched once every engine step has succeeded.
func (r *registry) enroll(ctx context.Context, eng Engine, p Principal, at time.Time) (*participant, error) {
	if _, ok := r.participants[p]; ok {
		return nil, reject(ErrAlreadyRegistered, map[string]string{"principal": string(p)})
	}
	total, err := encryptSealed(ctx, eng, 0, p)
	if err != nil {
		return nil, engineError(err)
	}
	count, err := encryptSealed(ctx, eng, 0, p)
	if err != nil {
		return nil, engineError(err)
	}
	part := &participant{
		principal:    p,
		registeredAt: at,
		profile:      profile{totalCommitted: total, positionCount: count},
	}
	r.participants[p] = part
	return part, nil
}

// accumulate computes the profile that results from adding valueDelta and
// countDelta. It does not store it; the caller swaps it in with replace.
func (r *registry) accumulate(ctx context.Context, eng Engine, p Principal, valueDelta, countDelta cve.Handle) (profile, error) {
	part, ok := r.participants[p]
	if !ok {
		return profile{}, reject(ErrNotRegistered, map[string]string{"principal": string(p)})
	}
	total, err := part.profile.totalCommitted.plus(ctx, eng, valueDelta)
	if err != nil {
		return profile{}, engineError(err)
	}
	count, err := part.profile.positionCount.plus(ctx, eng, countDelta)
	if err != nil {
		return profile{}, engineError(err)
	}
	return profile{totalCommitted: total, positionCount: count}, nil
}

func (r *registry) replace(p Principal, next profile) {
	if part, ok := r.participants[p]; ok {
		part.profile = next
	}
}

func (r *registry) len() int {
	return len(r.participants)
}
