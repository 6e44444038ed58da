package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/license"
	"github.com/darasahq/darasa/core/organization"
)

// pq unique_violation
const uniqueViolation = "23505"

type licenseRepository struct {
	db *sqlx.DB
}

var _ license.Repository = (*licenseRepository)(nil) // interface compliance check

func NewLicenseRepository(db *sqlx.DB) license.Repository {
	return &licenseRepository{db: db}
}

type dbPool struct {
	ID             string      `db:"id"`
	SubscriptionID string      `db:"subscription_id"`
	OrganizationID string      `db:"organization_id"`
	Name           string      `db:"name"`
	MemberType     string      `db:"member_type"`
	AllocatedSeats int         `db:"allocated_seats"`
	AssignedSeats  int         `db:"assigned_seats"`
	AutoAssign     bool        `db:"auto_assign"`
	IsActive       bool        `db:"is_active"`
	Version        int         `db:"version"`
	CreatedBy      null.String `db:"created_by"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func newDBPool(p license.Pool) dbPool {
	return dbPool{
		ID:             p.ID,
		SubscriptionID: p.SubscriptionID,
		OrganizationID: p.OrganizationID,
		Name:           p.Name,
		MemberType:     p.MemberType,
		AllocatedSeats: p.AllocatedSeats,
		AssignedSeats:  p.AssignedSeats,
		AutoAssign:     p.AutoAssign,
		IsActive:       p.IsActive,
		Version:        p.Version,
		CreatedBy:      null.NewString(p.CreatedBy, p.CreatedBy != ""),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func (dp dbPool) toPool() license.Pool {
	return license.Pool{
		ID:             dp.ID,
		SubscriptionID: dp.SubscriptionID,
		OrganizationID: dp.OrganizationID,
		Name:           dp.Name,
		MemberType:     dp.MemberType,
		AllocatedSeats: dp.AllocatedSeats,
		AssignedSeats:  dp.AssignedSeats,
		AutoAssign:     dp.AutoAssign,
		IsActive:       dp.IsActive,
		Version:        dp.Version,
		CreatedBy:      dp.CreatedBy.String,
		CreatedAt:      dp.CreatedAt,
		UpdatedAt:      dp.UpdatedAt,
	}
}

type dbAssignment struct {
	ID               string      `db:"id"`
	PoolID           string      `db:"pool_id"`
	SubscriptionID   string      `db:"subscription_id"`
	UserID           string      `db:"user_id"`
	MemberType       string      `db:"member_type"`
	Status           string      `db:"status"`
	AssignedBy       null.String `db:"assigned_by"`
	AssignedAt       time.Time   `db:"assigned_at"`
	RevokedBy        null.String `db:"revoked_by"`
	RevokedAt        null.Time   `db:"revoked_at"`
	RevocationReason string      `db:"revocation_reason"`
	TransferredFrom  null.String `db:"transferred_from"`
	TransferredTo    null.String `db:"transferred_to"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

func newDBAssignment(a license.Assignment) dbAssignment {
	return dbAssignment{
		ID:               a.ID,
		PoolID:           a.PoolID,
		SubscriptionID:   a.SubscriptionID,
		UserID:           a.UserID,
		MemberType:       a.MemberType,
		Status:           a.Status,
		AssignedBy:       null.NewString(a.AssignedBy, a.AssignedBy != ""),
		AssignedAt:       a.AssignedAt,
		RevokedBy:        null.NewString(a.RevokedBy, a.RevokedBy != ""),
		RevokedAt:        null.NewTime(a.RevokedAt, !a.RevokedAt.IsZero()),
		RevocationReason: a.RevocationReason,
		TransferredFrom:  null.NewString(a.TransferredFrom, a.TransferredFrom != ""),
		TransferredTo:    null.NewString(a.TransferredTo, a.TransferredTo != ""),
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func (da dbAssignment) toAssignment() license.Assignment {
	return license.Assignment{
		ID:               da.ID,
		PoolID:           da.PoolID,
		SubscriptionID:   da.SubscriptionID,
		UserID:           da.UserID,
		MemberType:       da.MemberType,
		Status:           da.Status,
		AssignedBy:       da.AssignedBy.String,
		AssignedAt:       da.AssignedAt,
		RevokedBy:        da.RevokedBy.String,
		RevokedAt:        da.RevokedAt.Time,
		RevocationReason: da.RevocationReason,
		TransferredFrom:  da.TransferredFrom.String,
		TransferredTo:    da.TransferredTo.String,
		CreatedAt:        da.CreatedAt,
		UpdatedAt:        da.UpdatedAt,
	}
}

const (
	poolColumns = `id, subscription_id, organization_id, name, member_type, allocated_seats,
	assigned_seats, auto_assign, is_active, version, created_by, created_at, updated_at`

	assignmentColumns = `id, pool_id, subscription_id, user_id, member_type, status, assigned_by,
	assigned_at, revoked_by, revoked_at, revocation_reason, transferred_from, transferred_to, created_at, updated_at`
)

// lockOrgSeats serializes seat accounting per organization by locking its
// subscription rows, then returns the unallocated seat count.
func (repo *licenseRepository) lockOrgSeats(ctx context.Context, tx *sqlx.Tx, orgID string) (int, error) {
	var subs []organization.Subscription
	err := tx.SelectContext(ctx, &subs,
		`SELECT `+subscriptionColumns+` FROM organization_subscriptions WHERE organization_id = $1 FOR UPDATE`, orgID)
	if err != nil {
		return 0, errors.Wrap(err, "locking organization subscriptions")
	}

	var dps []dbPool
	err = tx.SelectContext(ctx, &dps,
		`SELECT `+poolColumns+` FROM license_pools WHERE organization_id = $1`, orgID)
	if err != nil {
		return 0, errors.Wrap(err, "querying organization pools")
	}

	pools := make([]license.Pool, 0, len(dps))
	for _, dp := range dps {
		pools = append(pools, dp.toPool())
	}
	return license.ComputeSeatUsage(subs, pools).UnallocatedSeats, nil
}

func (repo *licenseRepository) CreatePool(ctx context.Context, pool license.Pool) (license.Pool, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return license.Pool{}, errors.Wrap(err, "creating pool")
	}
	defer func() { _ = tx.Rollback() }()

	unallocated, err := repo.lockOrgSeats(ctx, tx, pool.OrganizationID)
	if err != nil {
		return license.Pool{}, err
	}
	if pool.AllocatedSeats > unallocated {
		return license.Pool{}, license.ErrInsufficientSeats
	}

	if _, err = tx.NamedExecContext(ctx, `
		INSERT INTO license_pools (`+poolColumns+`)
		VALUES (:id, :subscription_id, :organization_id, :name, :member_type, :allocated_seats,
			:assigned_seats, :auto_assign, :is_active, :version, :created_by, :created_at, :updated_at)`,
		newDBPool(pool),
	); err != nil {
		return license.Pool{}, errors.Wrap(err, "creating pool")
	}
	if err = tx.Commit(); err != nil {
		return license.Pool{}, errors.Wrap(err, "creating pool")
	}
	return pool, nil
}

func (repo *licenseRepository) GetPool(ctx context.Context, id string) (license.Pool, error) {
	var dp dbPool
	if err := repo.db.GetContext(ctx, &dp, `SELECT `+poolColumns+` FROM license_pools WHERE id = $1`, id); err != nil {
		return license.Pool{}, trapNoRowsErr(err, license.ErrPoolNotFound, "getting pool")
	}
	return dp.toPool(), nil
}

func (repo *licenseRepository) QueryPools(ctx context.Context, orgID string, ordering ...core.DBOrdering) ([]license.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM license_pools WHERE organization_id = $1` +
		orderClause(ordering, "created_at ASC")

	var dps []dbPool
	if err := repo.db.SelectContext(ctx, &dps, query, orgID); err != nil {
		return nil, errors.Wrap(err, "querying pools")
	}
	pools := make([]license.Pool, 0, len(dps))
	for _, dp := range dps {
		pools = append(pools, dp.toPool())
	}
	return pools, nil
}

func (repo *licenseRepository) UpdatePool(ctx context.Context, pool license.Pool) (license.Pool, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return license.Pool{}, errors.Wrap(err, "updating pool")
	}
	defer func() { _ = tx.Rollback() }()

	unallocated, err := repo.lockOrgSeats(ctx, tx, pool.OrganizationID)
	if err != nil {
		return license.Pool{}, err
	}

	var curr dbPool
	if err = tx.GetContext(ctx, &curr, `SELECT `+poolColumns+` FROM license_pools WHERE id = $1 FOR UPDATE`, pool.ID); err != nil {
		return license.Pool{}, trapNoRowsErr(err, license.ErrPoolNotFound, "updating pool")
	}
	if curr.Version != pool.Version {
		return license.Pool{}, license.ErrStalePool
	}

	// seat bounds against current state; the caller's snapshot is advisory only
	if pool.AllocatedSeats < curr.AssignedSeats {
		return license.Pool{}, license.ErrNoSeatsAvailable
	}
	if pool.AllocatedSeats > curr.AllocatedSeats+unallocated {
		return license.Pool{}, license.ErrInsufficientSeats
	}

	pool.AssignedSeats = curr.AssignedSeats
	pool.Version = curr.Version + 1
	res, err := tx.NamedExecContext(ctx, `
		UPDATE license_pools SET
			name = :name, allocated_seats = :allocated_seats, auto_assign = :auto_assign,
			is_active = :is_active, version = :version, updated_at = :updated_at
		WHERE id = :id AND version = :version - 1`,
		newDBPool(pool),
	)
	if err != nil {
		return license.Pool{}, errors.Wrap(err, "updating pool")
	}
	if n, err := res.RowsAffected(); err != nil {
		return license.Pool{}, errors.Wrap(err, "updating pool")
	} else if n == 0 {
		return license.Pool{}, license.ErrStalePool
	}

	if err = tx.Commit(); err != nil {
		return license.Pool{}, errors.Wrap(err, "updating pool")
	}
	return pool, nil
}

func (repo *licenseRepository) DeletePool(ctx context.Context, id string) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "deleting pool")
	}
	defer func() { _ = tx.Rollback() }()

	var curr dbPool
	if err = tx.GetContext(ctx, &curr, `SELECT `+poolColumns+` FROM license_pools WHERE id = $1 FOR UPDATE`, id); err != nil {
		return trapNoRowsErr(err, license.ErrPoolNotFound, "deleting pool")
	}

	var active int
	err = tx.GetContext(ctx, &active,
		`SELECT COUNT(*) FROM license_assignments WHERE pool_id = $1 AND status = $2`, id, license.AssignmentActive)
	if err != nil {
		return errors.Wrap(err, "deleting pool")
	}
	if active > 0 {
		return license.ErrPoolHasAssignments
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM license_assignments WHERE pool_id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting pool")
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM license_pools WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting pool")
	}
	return errors.Wrap(tx.Commit(), "deleting pool")
}

func (repo *licenseRepository) AssignSeat(ctx context.Context, asg license.Assignment) (license.Assignment, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return license.Assignment{}, errors.Wrap(err, "assigning seat")
	}
	defer func() { _ = tx.Rollback() }()

	// one active seat per member per subscription
	var existing int
	err = tx.GetContext(ctx, &existing, `
		SELECT COUNT(*) FROM license_assignments
		WHERE subscription_id = $1 AND user_id = $2 AND status = $3`,
		asg.SubscriptionID, asg.UserID, license.AssignmentActive,
	)
	if err != nil {
		return license.Assignment{}, errors.Wrap(err, "assigning seat")
	}
	if existing > 0 {
		return license.Assignment{}, license.ErrAlreadyAssigned
	}

	// consume one pool seat; the guard makes concurrent over-assignment impossible
	res, err := tx.ExecContext(ctx, `
		UPDATE license_pools SET assigned_seats = assigned_seats + 1, updated_at = $2
		WHERE id = $1 AND is_active AND assigned_seats < allocated_seats`,
		asg.PoolID, asg.UpdatedAt,
	)
	if err != nil {
		return license.Assignment{}, errors.Wrap(err, "assigning seat")
	}
	if n, err := res.RowsAffected(); err != nil {
		return license.Assignment{}, errors.Wrap(err, "assigning seat")
	} else if n == 0 {
		var exists bool
		if err = tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM license_pools WHERE id = $1)`, asg.PoolID); err != nil {
			return license.Assignment{}, errors.Wrap(err, "assigning seat")
		}
		if !exists {
			return license.Assignment{}, license.ErrPoolNotFound
		}
		return license.Assignment{}, license.ErrNoSeatsAvailable
	}

	// keep the subscription's aggregate in sync
	res, err = tx.ExecContext(ctx, `
		UPDATE organization_subscriptions SET assigned_seats = assigned_seats + 1, updated_at = $2
		WHERE id = $1 AND assigned_seats < total_seats`,
		asg.SubscriptionID, asg.UpdatedAt,
	)
	if err != nil {
		return license.Assignment{}, errors.Wrap(err, "assigning seat")
	}
	if n, err := res.RowsAffected(); err != nil {
		return license.Assignment{}, errors.Wrap(err, "assigning seat")
	} else if n == 0 {
		return license.Assignment{}, license.ErrNoSeatsAvailable
	}

	if _, err = tx.NamedExecContext(ctx, `
		INSERT INTO license_assignments (`+assignmentColumns+`)
		VALUES (:id, :pool_id, :subscription_id, :user_id, :member_type, :status, :assigned_by,
			:assigned_at, :revoked_by, :revoked_at, :revocation_reason, :transferred_from, :transferred_to, :created_at, :updated_at)`,
		newDBAssignment(asg),
	); err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return license.Assignment{}, license.ErrAlreadyAssigned
		}
		return license.Assignment{}, errors.Wrap(err, "assigning seat")
	}

	if err = tx.Commit(); err != nil {
		return license.Assignment{}, errors.Wrap(err, "assigning seat")
	}
	return asg, nil
}

func (repo *licenseRepository) RevokeSeat(ctx context.Context, assignmentID, revokedBy, reason string) (license.Assignment, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return license.Assignment{}, errors.Wrap(err, "revoking seat")
	}
	defer func() { _ = tx.Rollback() }()

	var da dbAssignment
	if err = tx.GetContext(ctx, &da, `SELECT `+assignmentColumns+` FROM license_assignments WHERE id = $1 FOR UPDATE`, assignmentID); err != nil {
		return license.Assignment{}, trapNoRowsErr(err, license.ErrAssignmentNotFound, "revoking seat")
	}
	asg := da.toAssignment()
	if asg.Status != license.AssignmentActive {
		return license.Assignment{}, license.ErrAssignmentNotActive
	}

	now := time.Now().UTC()
	asg.Status = license.AssignmentRevoked
	asg.RevokedBy = revokedBy
	asg.RevokedAt = now
	asg.RevocationReason = reason
	asg.UpdatedAt = now

	if _, err = tx.NamedExecContext(ctx, `
		UPDATE license_assignments SET
			status = :status, revoked_by = :revoked_by, revoked_at = :revoked_at,
			revocation_reason = :revocation_reason, updated_at = :updated_at
		WHERE id = :id`,
		newDBAssignment(asg),
	); err != nil {
		return license.Assignment{}, errors.Wrap(err, "revoking seat")
	}

	// release the seat; a zero count here means the counters drifted from the
	// assignment rows, which must surface rather than silently no-op
	res, err := tx.ExecContext(ctx, `
		UPDATE license_pools SET assigned_seats = assigned_seats - 1, updated_at = $2
		WHERE id = $1 AND assigned_seats > 0`,
		asg.PoolID, now,
	)
	if err != nil {
		return license.Assignment{}, errors.Wrap(err, "revoking seat")
	}
	if n, err := res.RowsAffected(); err != nil {
		return license.Assignment{}, errors.Wrap(err, "revoking seat")
	} else if n == 0 {
		return license.Assignment{}, errors.Errorf("revoking seat: pool %s seat count already at zero", asg.PoolID)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE organization_subscriptions SET assigned_seats = assigned_seats - 1, updated_at = $2
		WHERE id = $1 AND assigned_seats > 0`,
		asg.SubscriptionID, now,
	)
	if err != nil {
		return license.Assignment{}, errors.Wrap(err, "revoking seat")
	}
	if n, err := res.RowsAffected(); err != nil {
		return license.Assignment{}, errors.Wrap(err, "revoking seat")
	} else if n == 0 {
		return license.Assignment{}, errors.Errorf("revoking seat: subscription %s seat count already at zero", asg.SubscriptionID)
	}

	if err = tx.Commit(); err != nil {
		return license.Assignment{}, errors.Wrap(err, "revoking seat")
	}
	return asg, nil
}

func (repo *licenseRepository) TransferSeat(ctx context.Context, assignmentID, toUserID, transferredBy string) (license.Assignment, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return license.Assignment{}, errors.Wrap(err, "transferring seat")
	}
	defer func() { _ = tx.Rollback() }()

	var da dbAssignment
	if err = tx.GetContext(ctx, &da, `SELECT `+assignmentColumns+` FROM license_assignments WHERE id = $1 FOR UPDATE`, assignmentID); err != nil {
		return license.Assignment{}, trapNoRowsErr(err, license.ErrAssignmentNotFound, "transferring seat")
	}
	old := da.toAssignment()
	if old.Status != license.AssignmentActive {
		return license.Assignment{}, license.ErrAssignmentNotActive
	}

	var existing int
	err = tx.GetContext(ctx, &existing, `
		SELECT COUNT(*) FROM license_assignments
		WHERE subscription_id = $1 AND user_id = $2 AND status = $3`,
		old.SubscriptionID, toUserID, license.AssignmentActive,
	)
	if err != nil {
		return license.Assignment{}, errors.Wrap(err, "transferring seat")
	}
	if existing > 0 {
		return license.Assignment{}, license.ErrAlreadyAssigned
	}

	now := time.Now().UTC()
	old.Status = license.AssignmentRevoked
	old.RevokedBy = transferredBy
	old.RevokedAt = now
	old.RevocationReason = "transferred"
	old.TransferredTo = toUserID
	old.UpdatedAt = now
	if _, err = tx.NamedExecContext(ctx, `
		UPDATE license_assignments SET
			status = :status, revoked_by = :revoked_by, revoked_at = :revoked_at,
			revocation_reason = :revocation_reason, transferred_to = :transferred_to, updated_at = :updated_at
		WHERE id = :id`,
		newDBAssignment(old),
	); err != nil {
		return license.Assignment{}, errors.Wrap(err, "transferring seat")
	}

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
	if _, err = tx.NamedExecContext(ctx, `
		INSERT INTO license_assignments (`+assignmentColumns+`)
		VALUES (:id, :pool_id, :subscription_id, :user_id, :member_type, :status, :assigned_by,
			:assigned_at, :revoked_by, :revoked_at, :revocation_reason, :transferred_from, :transferred_to, :created_at, :updated_at)`,
		newDBAssignment(next),
	); err != nil {
		return license.Assignment{}, errors.Wrap(err, "transferring seat")
	}

	if err = tx.Commit(); err != nil {
		return license.Assignment{}, errors.Wrap(err, "transferring seat")
	}
	return next, nil
}

func (repo *licenseRepository) GetAssignment(ctx context.Context, id string) (license.Assignment, error) {
	var da dbAssignment
	if err := repo.db.GetContext(ctx, &da, `SELECT `+assignmentColumns+` FROM license_assignments WHERE id = $1`, id); err != nil {
		return license.Assignment{}, trapNoRowsErr(err, license.ErrAssignmentNotFound, "getting assignment")
	}
	return da.toAssignment(), nil
}

func (repo *licenseRepository) QueryPoolAssignments(ctx context.Context, poolID string) ([]license.Assignment, error) {
	return repo.queryAssignments(ctx, `SELECT `+assignmentColumns+` FROM license_assignments WHERE pool_id = $1 ORDER BY assigned_at DESC`, poolID)
}

func (repo *licenseRepository) QueryUserAssignments(ctx context.Context, userID string) ([]license.Assignment, error) {
	return repo.queryAssignments(ctx, `SELECT `+assignmentColumns+` FROM license_assignments WHERE user_id = $1 ORDER BY assigned_at DESC`, userID)
}

func (repo *licenseRepository) queryAssignments(ctx context.Context, query string, args ...interface{}) ([]license.Assignment, error) {
	var das []dbAssignment
	if err := repo.db.SelectContext(ctx, &das, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	asgs := make([]license.Assignment, 0, len(das))
	for _, da := range das {
		asgs = append(asgs, da.toAssignment())
	}
	return asgs, nil
}
