package license

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/organization"
)

var (
	// errors
	ErrPoolNotFound        = errors.New("license pool not found")
	ErrAssignmentNotFound  = errors.New("license assignment not found")
	ErrPoolHasAssignments  = errors.New("pool still has assigned seats")
	ErrAssignmentNotActive = errors.New("license assignment is not active")
	ErrAlreadyAssigned     = errors.New("user already has an active license assignment")
	ErrNoAutoAssignPool    = errors.New("no auto-assign pool with available seats")

	// conflicts; mapped to 409 so clients retry against fresh data
	ErrStalePool         = core.NewConflictError("pool was modified concurrently; reload and retry")
	ErrNoSeatsAvailable  = core.NewConflictError("no available seats in pool")
	ErrInsufficientSeats = core.NewConflictError("insufficient unallocated seats in organization")
)

type (
	// Repository persists pools and assignments. Every mutating method runs
	// its checks and writes inside a single transaction: seat bounds are
	// never validated against a caller-supplied snapshot.
	Repository interface {
		CreatePool(ctx context.Context, pool Pool) (Pool, error)
		GetPool(ctx context.Context, id string) (Pool, error)
		QueryPools(ctx context.Context, orgID string, ordering ...core.DBOrdering) ([]Pool, error)
		// UpdatePool writes the given pool fields guarded by pool.Version;
		// returns ErrStalePool when the stamp no longer matches.
		UpdatePool(ctx context.Context, pool Pool) (Pool, error)
		DeletePool(ctx context.Context, id string) error
		// AssignSeat atomically consumes one seat from the pool and records
		// the assignment; fails with ErrNoSeatsAvailable or ErrAlreadyAssigned.
		AssignSeat(ctx context.Context, asg Assignment) (Assignment, error)
		// RevokeSeat atomically revokes an active assignment and releases its seat.
		RevokeSeat(ctx context.Context, assignmentID, revokedBy, reason string) (Assignment, error)
		// TransferSeat revokes the given assignment and re-issues its seat to
		// toUserID within one transaction; pool counts are unchanged.
		TransferSeat(ctx context.Context, assignmentID, toUserID, transferredBy string) (Assignment, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		QueryPoolAssignments(ctx context.Context, poolID string) ([]Assignment, error)
		QueryUserAssignments(ctx context.Context, userID string) ([]Assignment, error)
	}

	Service interface {
		CreatePool(ctx context.Context, np NewPool, createdBy string) (Pool, error)
		GetPool(ctx context.Context, id string) (Pool, error)
		QueryPools(ctx context.Context, orgID string, ordering ...core.DBOrdering) ([]Pool, error)
		UpdatePool(ctx context.Context, id string, up UpdatePool) (Pool, error)
		DeletePool(ctx context.Context, id string) error
		Assign(ctx context.Context, poolID, userID, assignedBy string) (Assignment, error)
		BulkAssign(ctx context.Context, poolID string, userIDs []string, assignedBy string) (BulkAssignmentResult, error)
		Revoke(ctx context.Context, assignmentID, revokedBy, reason string) (Assignment, error)
		Transfer(ctx context.Context, assignmentID, toUserID, transferredBy string) (Assignment, error)
		// AutoAssign grants a seat from the first active auto-assign pool of the
		// member type that has capacity; ErrNoAutoAssignPool when none does.
		AutoAssign(ctx context.Context, orgID, userID, memberType, assignedBy string) (Assignment, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		PoolAssignments(ctx context.Context, poolID string) ([]Assignment, error)
		UserAssignments(ctx context.Context, userID string) ([]Assignment, error)
		SeatUsage(ctx context.Context, orgID string) (SeatUsage, error)
	}

	service struct {
		repo     Repository
		subRepo  organization.Repository
		validate *validator.Validate
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, subRepo organization.Repository, validate *validator.Validate, logger core.Logger) Service {
	return &service{
		repo:     repo,
		subRepo:  subRepo,
		validate: validate,
		logger:   logger,
	}
}

func (svc *service) CreatePool(ctx context.Context, np NewPool, createdBy string) (Pool, error) {
	if err := np.Validate(svc.validate); err != nil {
		return Pool{}, err
	}

	now := time.Now().UTC()
	pool := Pool{
		ID:             uuid.New().String(),
		SubscriptionID: np.SubscriptionID,
		OrganizationID: np.OrganizationID,
		Name:           np.Name,
		MemberType:     np.MemberType,
		AllocatedSeats: np.AllocatedSeats,
		AutoAssign:     np.AutoAssign,
		IsActive:       true,
		Version:        1,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return svc.repo.CreatePool(ctx, pool)
}

func (svc *service) GetPool(ctx context.Context, id string) (Pool, error) {
	return svc.repo.GetPool(ctx, id)
}

func (svc *service) QueryPools(ctx context.Context, orgID string, ordering ...core.DBOrdering) ([]Pool, error) {
	return svc.repo.QueryPools(ctx, orgID, ordering...)
}

func (svc *service) UpdatePool(ctx context.Context, id string, up UpdatePool) (Pool, error) {
	if err := up.Validate(svc.validate); err != nil {
		return Pool{}, err
	}

	pool, err := svc.repo.GetPool(ctx, id)
	if err != nil {
		return Pool{}, err
	}

	// pre-check against the current snapshot for friendly field errors;
	// the repository re-checks atomically and is the authority
	usage, err := svc.SeatUsage(ctx, pool.OrganizationID)
	if err != nil {
		return Pool{}, err
	}
	if err := up.CheckSeatBounds(pool, usage.UnallocatedSeats); err != nil {
		return Pool{}, err
	}

	pool.Version = up.Version
	if up.Name != "" {
		pool.Name = up.Name
	}
	if up.AllocatedSeats != nil {
		pool.AllocatedSeats = *up.AllocatedSeats
	}
	if up.AutoAssign != nil {
		pool.AutoAssign = *up.AutoAssign
	}
	if up.IsActive != nil {
		pool.IsActive = *up.IsActive
	}
	pool.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdatePool(ctx, pool)
}

func (svc *service) DeletePool(ctx context.Context, id string) error {
	return svc.repo.DeletePool(ctx, id)
}

func (svc *service) Assign(ctx context.Context, poolID, userID, assignedBy string) (Assignment, error) {
	pool, err := svc.repo.GetPool(ctx, poolID)
	if err != nil {
		return Assignment{}, err
	}

	now := time.Now().UTC()
	asg := Assignment{
		ID:             uuid.New().String(),
		PoolID:         pool.ID,
		SubscriptionID: pool.SubscriptionID,
		UserID:         userID,
		MemberType:     pool.MemberType,
		Status:         AssignmentActive,
		AssignedBy:     assignedBy,
		AssignedAt:     now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return svc.repo.AssignSeat(ctx, asg)
}

func (svc *service) BulkAssign(ctx context.Context, poolID string, userIDs []string, assignedBy string) (BulkAssignmentResult, error) {
	result := BulkAssignmentResult{
		Successful: []Assignment{},
		Failed:     []BulkAssignmentFailure{},
	}
	for _, userID := range userIDs {
		asg, err := svc.Assign(ctx, poolID, userID, assignedBy)
		if err != nil {
			result.Failed = append(result.Failed, BulkAssignmentFailure{UserID: userID, Error: err.Error()})
			continue
		}
		result.Successful = append(result.Successful, asg)
	}
	return result, nil
}

func (svc *service) Revoke(ctx context.Context, assignmentID, revokedBy, reason string) (Assignment, error) {
	return svc.repo.RevokeSeat(ctx, assignmentID, revokedBy, reason)
}

func (svc *service) Transfer(ctx context.Context, assignmentID, toUserID, transferredBy string) (Assignment, error) {
	return svc.repo.TransferSeat(ctx, assignmentID, toUserID, transferredBy)
}

func (svc *service) AutoAssign(ctx context.Context, orgID, userID, memberType, assignedBy string) (Assignment, error) {
	pools, err := svc.repo.QueryPools(ctx, orgID)
	if err != nil {
		return Assignment{}, err
	}
	for _, pool := range pools {
		if !pool.AutoAssign || !pool.IsActive || pool.MemberType != memberType || pool.AvailableSeats() <= 0 {
			continue
		}
		asg, err := svc.Assign(ctx, pool.ID, userID, assignedBy)
		if err != nil {
			// a concurrent assign may have consumed the last seat; try the next pool
			if core.IsConflict(err) {
				continue
			}
			return Assignment{}, err
		}
		return asg, nil
	}
	return Assignment{}, ErrNoAutoAssignPool
}

func (svc *service) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	return svc.repo.GetAssignment(ctx, id)
}

func (svc *service) PoolAssignments(ctx context.Context, poolID string) ([]Assignment, error) {
	return svc.repo.QueryPoolAssignments(ctx, poolID)
}

func (svc *service) UserAssignments(ctx context.Context, userID string) ([]Assignment, error) {
	return svc.repo.QueryUserAssignments(ctx, userID)
}

func (svc *service) SeatUsage(ctx context.Context, orgID string) (SeatUsage, error) {
	subs, err := svc.subRepo.QuerySubscriptions(ctx, orgID)
	if err != nil {
		return SeatUsage{}, err
	}
	pools, err := svc.repo.QueryPools(ctx, orgID)
	if err != nil {
		return SeatUsage{}, err
	}
	return ComputeSeatUsage(subs, pools), nil
}
