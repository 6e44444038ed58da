package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/license"
	"github.com/darasahq/darasa/core/organization"
)

type licenseRepository struct {
	db *DB
}

var _ license.Repository = (*licenseRepository)(nil) // interface compliance check

func NewLicenseRepository(db *DB) license.Repository {
	return &licenseRepository{db: db}
}

// queryPools must be called with the db lock held.
func (repo *licenseRepository) queryPools(orgID string) []license.Pool {
	pools := make([]license.Pool, 0)
	for _, p := range repo.db.pools {
		if p.OrganizationID == orgID {
			pools = append(pools, *p)
		}
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].CreatedAt.Before(pools[j].CreatedAt) })
	return pools
}

// unallocatedSeats must be called with the db lock held.
func (repo *licenseRepository) unallocatedSeats(orgID string) int {
	subs := make([]organization.Subscription, 0)
	for _, sub := range repo.db.subscriptions {
		if sub.OrganizationID == orgID {
			subs = append(subs, *sub)
		}
	}
	return license.ComputeSeatUsage(subs, repo.queryPools(orgID)).UnallocatedSeats
}

func (repo *licenseRepository) CreatePool(ctx context.Context, pool license.Pool) (license.Pool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if pool.AllocatedSeats > repo.unallocatedSeats(pool.OrganizationID) {
		return license.Pool{}, license.ErrInsufficientSeats
	}
	repo.db.pools[pool.ID] = &pool
	return pool, nil
}

func (repo *licenseRepository) GetPool(ctx context.Context, id string) (license.Pool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.pools[id]; ok {
		return *p, nil
	}
	return license.Pool{}, license.ErrPoolNotFound
}

func (repo *licenseRepository) QueryPools(ctx context.Context, orgID string, ordering ...core.DBOrdering) ([]license.Pool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.queryPools(orgID), nil
}

func (repo *licenseRepository) UpdatePool(ctx context.Context, pool license.Pool) (license.Pool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	curr, ok := repo.db.pools[pool.ID]
	if !ok {
		return license.Pool{}, license.ErrPoolNotFound
	}
	if curr.Version != pool.Version {
		return license.Pool{}, license.ErrStalePool
	}

	// seat bounds against current state; the caller's snapshot is advisory only
	if pool.AllocatedSeats < curr.AssignedSeats {
		return license.Pool{}, license.ErrNoSeatsAvailable
	}
	if pool.AllocatedSeats > curr.AllocatedSeats+repo.unallocatedSeats(pool.OrganizationID) {
		return license.Pool{}, license.ErrInsufficientSeats
	}

	pool.AssignedSeats = curr.AssignedSeats
	pool.Version = curr.Version + 1
	repo.db.pools[pool.ID] = &pool
	return pool, nil
}

func (repo *licenseRepository) DeletePool(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.pools[id]; !ok {
		return license.ErrPoolNotFound
	}
	for _, asg := range repo.db.assignments {
		if asg.PoolID == id && asg.Status == license.AssignmentActive {
			return license.ErrPoolHasAssignments
		}
	}
	for asgID, asg := range repo.db.assignments {
		if asg.PoolID == id {
			delete(repo.db.assignments, asgID)
		}
	}
	delete(repo.db.pools, id)
	return nil
}

func (repo *licenseRepository) AssignSeat(ctx context.Context, asg license.Assignment) (license.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// one active seat per member per subscription
	for _, a := range repo.db.assignments {
		if a.SubscriptionID == asg.SubscriptionID && a.UserID == asg.UserID && a.Status == license.AssignmentActive {
			return license.Assignment{}, license.ErrAlreadyAssigned
		}
	}

	pool, ok := repo.db.pools[asg.PoolID]
	if !ok {
		return license.Assignment{}, license.ErrPoolNotFound
	}
	if !pool.IsActive || pool.AssignedSeats >= pool.AllocatedSeats {
		return license.Assignment{}, license.ErrNoSeatsAvailable
	}

	sub, ok := repo.db.subscriptions[asg.SubscriptionID]
	if !ok || sub.AssignedSeats >= sub.TotalSeats {
		return license.Assignment{}, license.ErrNoSeatsAvailable
	}

	pool.AssignedSeats++
	pool.UpdatedAt = asg.UpdatedAt
	sub.AssignedSeats++
	sub.UpdatedAt = asg.UpdatedAt
	repo.db.assignments[asg.ID] = &asg
	return asg, nil
}

func (repo *licenseRepository) RevokeSeat(ctx context.Context, assignmentID, revokedBy, reason string) (license.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	asg, ok := repo.db.assignments[assignmentID]
	if !ok {
		return license.Assignment{}, license.ErrAssignmentNotFound
	}
	if asg.Status != license.AssignmentActive {
		return license.Assignment{}, license.ErrAssignmentNotActive
	}

	// a zero count here means the counters drifted from the assignment rows,
	// which must surface rather than silently no-op
	pool, ok := repo.db.pools[asg.PoolID]
	if !ok || pool.AssignedSeats == 0 {
		return license.Assignment{}, errors.Errorf("revoking seat: pool %s seat count already at zero", asg.PoolID)
	}
	sub, ok := repo.db.subscriptions[asg.SubscriptionID]
	if !ok || sub.AssignedSeats == 0 {
		return license.Assignment{}, errors.Errorf("revoking seat: subscription %s seat count already at zero", asg.SubscriptionID)
	}

	now := time.Now().UTC()
	asg.Status = license.AssignmentRevoked
	asg.RevokedBy = revokedBy
	asg.RevokedAt = now
	asg.RevocationReason = reason
	asg.UpdatedAt = now

	// release the seat
	pool.AssignedSeats--
	pool.UpdatedAt = now
	sub.AssignedSeats--
	sub.UpdatedAt = now
	return *asg, nil
}

func (repo *licenseRepository) TransferSeat(ctx context.Context, assignmentID, toUserID, transferredBy string) (license.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	old, ok := repo.db.assignments[assignmentID]
	if !ok {
		return license.Assignment{}, license.ErrAssignmentNotFound
	}
	if old.Status != license.AssignmentActive {
		return license.Assignment{}, license.ErrAssignmentNotActive
	}
	for _, a := range repo.db.assignments {
		if a.SubscriptionID == old.SubscriptionID && a.UserID == toUserID && a.Status == license.AssignmentActive {
			return license.Assignment{}, license.ErrAlreadyAssigned
		}
	}

	now := time.Now().UTC()
	old.Status = license.AssignmentRevoked
	old.RevokedBy = transferredBy
	old.RevokedAt = now
	old.RevocationReason = "transferred"
	old.TransferredTo = toUserID
	old.UpdatedAt = now

	// pool counts are unchanged: the seat moves with the transfer
	next := license.Assignment{
		ID:              uuid.New().String(),
		PoolID:          old.PoolID,
		SubscriptionID:  old.SubscriptionID,
		UserID:          toUserID,
		MemberType:      old.MemberType,
		Status:          license.AssignmentActive,
		AssignedBy:      transferredBy,
		AssignedAt:      now,
		TransferredFrom: old.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	repo.db.assignments[next.ID] = &next
	return next, nil
}

func (repo *licenseRepository) GetAssignment(ctx context.Context, id string) (license.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if asg, ok := repo.db.assignments[id]; ok {
		return *asg, nil
	}
	return license.Assignment{}, license.ErrAssignmentNotFound
}

func (repo *licenseRepository) QueryPoolAssignments(ctx context.Context, poolID string) ([]license.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	asgs := make([]license.Assignment, 0)
	for _, asg := range repo.db.assignments {
		if asg.PoolID == poolID {
			asgs = append(asgs, *asg)
		}
	}
	sortAssignments(asgs)
	return asgs, nil
}

func (repo *licenseRepository) QueryUserAssignments(ctx context.Context, userID string) ([]license.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	asgs := make([]license.Assignment, 0)
	for _, asg := range repo.db.assignments {
		if asg.UserID == userID {
			asgs = append(asgs, *asg)
		}
	}
	sortAssignments(asgs)
	return asgs, nil
}

func sortAssignments(asgs []license.Assignment) {
	sort.Slice(asgs, func(i, j int) bool { return asgs[i].AssignedAt.After(asgs[j].AssignedAt) })
}
