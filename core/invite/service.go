package invite

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/license"
)

var (
	// errors
	ErrNotFound         = errors.New("invitation not found")
	ErrDuplicateInvite  = errors.New("a pending invitation for this email already exists")
	ErrInviteExpired    = errors.New("invitation has expired")
	ErrInviteNotPending = errors.New("invitation is no longer pending")
)

type (
	Repository interface {
		CreateInvitation(ctx context.Context, inv Invitation) (Invitation, error)
		GetInvitation(ctx context.Context, id string) (Invitation, error)
		GetInvitationByToken(ctx context.Context, token string) (Invitation, error)
		// GetPendingInvitation returns the pending invitation for the given
		// organization and email, or ErrNotFound.
		GetPendingInvitation(ctx context.Context, orgID, email string) (Invitation, error)
		QueryOrgInvitations(ctx context.Context, orgID string, ordering ...core.DBOrdering) ([]Invitation, error)
		UpdateInvitation(ctx context.Context, inv Invitation) (Invitation, error)
		// ExpireOldInvitations flips pending invitations past their expiry to
		// expired and reports how many were flipped.
		ExpireOldInvitations(ctx context.Context, now time.Time) (int, error)
	}

	Service interface {
		Invite(ctx context.Context, ni NewInvitation, invitedBy string) (Invitation, error)
		BulkInvite(ctx context.Context, bi BulkInvitation, invitedBy string) (BulkInvitationResult, error)
		GetByID(ctx context.Context, id string) (Invitation, error)
		GetByToken(ctx context.Context, token string) (Invitation, error)
		QueryByOrg(ctx context.Context, orgID string, ordering ...core.DBOrdering) ([]Invitation, error)
		// Resend issues a fresh token and expiry and re-sends the invitation mail.
		Resend(ctx context.Context, id string) (Invitation, error)
		Cancel(ctx context.Context, id string) (Invitation, error)
		// Accept redeems a pending invitation and grants the accepting user a
		// license seat: from the pinned pool when set, otherwise from the first
		// matching auto-assign pool.
		Accept(ctx context.Context, ai AcceptInvitation) (Invitation, error)
		ExpireOld(ctx context.Context) (int, error)
		Stats(ctx context.Context, orgID string) (Stats, error)
	}

	service struct {
		conf     *core.Config
		repo     Repository
		licSvc   license.Service
		mailSvc  core.EmailService
		validate *validator.Validate
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	conf *core.Config,
	repo Repository,
	licSvc license.Service,
	mailSvc core.EmailService,
	validate *validator.Validate,
	logger core.Logger,
) Service {
	return &service{
		conf:     conf,
		repo:     repo,
		licSvc:   licSvc,
		mailSvc:  mailSvc,
		validate: validate,
		logger:   logger,
	}
}

func (svc *service) Invite(ctx context.Context, ni NewInvitation, invitedBy string) (Invitation, error) {
	if err := ni.Validate(svc.validate); err != nil {
		return Invitation{}, err
	}

	if _, err := svc.repo.GetPendingInvitation(ctx, ni.OrganizationID, ni.Email); err == nil {
		return Invitation{}, core.NewValidationError(ErrDuplicateInvite, core.FieldError{
			Field: "email", Error: ErrDuplicateInvite.Error(),
		})
	} else if err != ErrNotFound {
		return Invitation{}, err
	}

	now := time.Now().UTC()
	inv := Invitation{
		ID:             uuid.New().String(),
		OrganizationID: ni.OrganizationID,
		PoolID:         ni.PoolID,
		Email:          ni.Email,
		MemberType:     ni.MemberType,
		Status:         StatusPending,
		Token:          makeToken(),
		InvitedBy:      invitedBy,
		ExpiresAt:      now.Add(svc.conf.InvitationExpirationDelta),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	inv, err := svc.repo.CreateInvitation(ctx, inv)
	if err != nil {
		return Invitation{}, err
	}
	go svc.sendInvitationMail(inv)
	return inv, nil
}

func (svc *service) BulkInvite(ctx context.Context, bi BulkInvitation, invitedBy string) (BulkInvitationResult, error) {
	if err := bi.Validate(svc.validate); err != nil {
		return BulkInvitationResult{}, err
	}

	result := BulkInvitationResult{
		Successful: []Invitation{},
		Failed:     []BulkInvitationFailure{},
	}
	for _, email := range bi.Emails {
		ni := NewInvitation{
			OrganizationID: bi.OrganizationID,
			PoolID:         bi.PoolID,
			Email:          email,
			MemberType:     bi.MemberType,
		}
		inv, err := svc.Invite(ctx, ni, invitedBy)
		if err != nil {
			result.Failed = append(result.Failed, BulkInvitationFailure{Email: email, Error: err.Error()})
			continue
		}
		result.Successful = append(result.Successful, inv)
	}
	return result, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Invitation, error) {
	return svc.repo.GetInvitation(ctx, id)
}

func (svc *service) GetByToken(ctx context.Context, token string) (Invitation, error) {
	return svc.repo.GetInvitationByToken(ctx, token)
}

func (svc *service) QueryByOrg(ctx context.Context, orgID string, ordering ...core.DBOrdering) ([]Invitation, error) {
	return svc.repo.QueryOrgInvitations(ctx, orgID, ordering...)
}

func (svc *service) Resend(ctx context.Context, id string) (Invitation, error) {
	inv, err := svc.repo.GetInvitation(ctx, id)
	if err != nil {
		return Invitation{}, err
	}
	if !inv.IsPending() {
		return Invitation{}, ErrInviteNotPending
	}

	now := time.Now().UTC()
	inv.Token = makeToken()
	inv.ExpiresAt = now.Add(svc.conf.InvitationExpirationDelta)
	inv.UpdatedAt = now
	inv, err = svc.repo.UpdateInvitation(ctx, inv)
	if err != nil {
		return Invitation{}, err
	}
	go svc.sendInvitationMail(inv)
	return inv, nil
}

func (svc *service) Cancel(ctx context.Context, id string) (Invitation, error) {
	inv, err := svc.repo.GetInvitation(ctx, id)
	if err != nil {
		return Invitation{}, err
	}
	if !inv.IsPending() {
		return Invitation{}, ErrInviteNotPending
	}

	inv.Status = StatusCancelled
	inv.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateInvitation(ctx, inv)
}

func (svc *service) Accept(ctx context.Context, ai AcceptInvitation) (Invitation, error) {
	if err := ai.Validate(svc.validate); err != nil {
		return Invitation{}, err
	}

	inv, err := svc.repo.GetInvitationByToken(ctx, ai.Token)
	if err != nil {
		return Invitation{}, err
	}
	if !inv.IsPending() {
		return Invitation{}, ErrInviteNotPending
	}

	now := time.Now().UTC()
	if inv.IsExpired(now) {
		inv.Status = StatusExpired
		inv.UpdatedAt = now
		if _, err := svc.repo.UpdateInvitation(ctx, inv); err != nil {
			return Invitation{}, err
		}
		return Invitation{}, ErrInviteExpired
	}

	// the invitation only completes once a seat is secured
	if inv.PoolID != "" {
		_, err = svc.licSvc.Assign(ctx, inv.PoolID, ai.UserID, inv.InvitedBy)
	} else {
		_, err = svc.licSvc.AutoAssign(ctx, inv.OrganizationID, ai.UserID, inv.MemberType, inv.InvitedBy)
	}
	if err != nil {
		return Invitation{}, err
	}

	inv.Status = StatusAccepted
	inv.AcceptedBy = ai.UserID
	inv.AcceptedAt = now
	inv.UpdatedAt = now
	return svc.repo.UpdateInvitation(ctx, inv)
}

func (svc *service) ExpireOld(ctx context.Context) (int, error) {
	return svc.repo.ExpireOldInvitations(ctx, time.Now().UTC())
}

func (svc *service) Stats(ctx context.Context, orgID string) (Stats, error) {
	invs, err := svc.repo.QueryOrgInvitations(ctx, orgID)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(invs), nil
}

func (svc *service) sendInvitationMail(inv Invitation) {
	url := fmt.Sprintf("%s/invitations/accept?token=%s", svc.conf.FrontendBaseURL, inv.Token)
	msg := &core.EmailMessage{
		To:           []mail.Address{{Address: inv.Email}},
		Subject:      fmt.Sprintf("You have been invited to join %s", svc.conf.AppName),
		TemplateName: "invitation",
		TemplateData: struct {
			Invitation Invitation
			AcceptURL  string
		}{inv, url},
	}
	svc.mailSvc.SendMessages(msg)
}
