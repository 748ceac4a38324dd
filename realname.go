package ucenter

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// RealnameInput is a real-name verification submission
type RealnameInput struct {
	AuthType      AuthType `json:"auth_type"`
	RealName      string   `json:"real_name"`
	Identity      string   `json:"identity"`
	IDCardFront   string   `json:"id_card_front"`
	IDCardBack    string   `json:"id_card_back"`
	IDCardHand    string   `json:"id_card_hand"`
	License       string   `json:"license"`
	ContactPerson string   `json:"contact_person"`
	ContactMobile string   `json:"contact_mobile"`
	ContactEmail  string   `json:"contact_email"`
}

// ReviewDecision is the outcome of a review
type ReviewDecision int

const (
	ReviewApprove ReviewDecision = 1
	ReviewReject  ReviewDecision = 2
)

// RealnameReview runs the real-name submission and review workflow
type RealnameReview struct {
	repo     RepositoryManager
	rules    fieldRules
	now      func() time.Time
	activity activityRecorder
	logger   Logger
}

// NewRealnameReview wires a RealnameReview.
func NewRealnameReview(repo RepositoryManager, cfg Config, now func() time.Time, sink ActivitySink, logger Logger) *RealnameReview {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &RealnameReview{
		repo:     repo,
		rules:    newFieldRules(cfg),
		now:      now,
		activity: activityRecorder{sink: normalizeActivitySink(sink), now: now, logger: logger},
		logger:   logger,
	}
}

func (r *RealnameReview) validate(input RealnameInput) error {
	errs := validation.Errors{}
	switch input.AuthType {
	case AuthTypeIndividual:
		errs["real_name"] = validation.Validate(input.RealName, validation.Required, minRunes(2), validation.RuneLength(0, 64))
		errs["identity"] = validation.Validate(input.Identity, validation.Required, validation.By(isResidentID))
	case AuthTypeOrganization:
		errs["real_name"] = validation.Validate(input.RealName, validation.Required, minRunes(2), validation.RuneLength(0, 128))
		errs["identity"] = validation.Validate(input.Identity, validation.Required, validation.By(isCreditCode))
		errs["license"] = validation.Validate(input.License, validation.Required, is.URL)
		errs["contact_person"] = validation.Validate(input.ContactPerson, validation.RuneLength(0, 32))
		errs["contact_mobile"] = validation.Validate(input.ContactMobile, r.rules.mobile())
		errs["contact_email"] = validation.Validate(input.ContactEmail, is.EmailFormat)
	default:
		return newValidationError("auth_type: must be individual or organization")
	}

	errs["id_card_front"] = validation.Validate(input.IDCardFront, validation.Required, is.URL)
	errs["id_card_back"] = validation.Validate(input.IDCardBack, validation.Required, is.URL)
	errs["id_card_hand"] = validation.Validate(input.IDCardHand, validation.Required, is.URL)

	return toValidationError(errs.Filter())
}

func normalizeRealname(input RealnameInput) RealnameInput {
	input.RealName = strings.TrimSpace(input.RealName)
	input.Identity = strings.ToUpper(strings.TrimSpace(input.Identity))
	input.IDCardFront = strings.TrimSpace(input.IDCardFront)
	input.IDCardBack = strings.TrimSpace(input.IDCardBack)
	input.IDCardHand = strings.TrimSpace(input.IDCardHand)
	input.License = strings.TrimSpace(input.License)
	input.ContactPerson = strings.TrimSpace(input.ContactPerson)
	input.ContactMobile = strings.TrimSpace(input.ContactMobile)
	input.ContactEmail = strings.TrimSpace(input.ContactEmail)
	if input.AuthType == AuthTypeIndividual {
		input.License = ""
		input.ContactPerson = ""
		input.ContactMobile = ""
		input.ContactEmail = ""
	}
	return input
}

// Submit stores the first submission of uid.
func (r *RealnameReview) Submit(ctx context.Context, uid int64, input RealnameInput) (*RealnameAuth, error) {
	input = normalizeRealname(input)
	if err := r.validate(input); err != nil {
		return nil, err
	}

	var record *RealnameAuth
	err := r.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		record, err = r.submitTx(ctx, tx, uid, input)
		return err
	})
	if err != nil {
		return nil, passThroughRejection(err, TextCodeStoreFault, "failed to submit real-name verification")
	}

	r.submitted(ctx, record, false)
	return record, nil
}

func (r *RealnameReview) submitTx(ctx context.Context, tx bun.IDB, uid int64, input RealnameInput) (*RealnameAuth, error) {
	if _, err := r.repo.Accounts().GetByIDTx(ctx, tx, uid); err != nil {
		if isNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, storeFault(err, "failed to load account")
	}

	_, err := r.repo.RealnameAuths().GetByAccountTx(ctx, tx, uid)
	switch {
	case err == nil:
		return nil, ErrRealnameExists
	case !isNotFound(err):
		return nil, storeFault(err, "failed to load real-name record")
	}

	record := &RealnameAuth{
		AccountID:     uid,
		AuthType:      input.AuthType,
		RealName:      input.RealName,
		Identity:      input.Identity,
		IDCardFront:   input.IDCardFront,
		IDCardBack:    input.IDCardBack,
		IDCardHand:    input.IDCardHand,
		License:       input.License,
		ContactPerson: input.ContactPerson,
		ContactMobile: input.ContactMobile,
		ContactEmail:  input.ContactEmail,
		Status:        ReviewPending,
	}
	if _, err := r.repo.RealnameAuths().CreateTx(ctx, tx, record); err != nil {
		return nil, storeFault(err, "failed to store real-name record")
	}
	return record, nil
}

// Resubmit replaces a rejected submission with a new pending one. The
// delete and the insert commit together.
func (r *RealnameReview) Resubmit(ctx context.Context, uid int64, input RealnameInput) (*RealnameAuth, error) {
	input = normalizeRealname(input)
	if err := r.validate(input); err != nil {
		return nil, err
	}

	var record *RealnameAuth
	err := r.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := r.repo.RealnameAuths().GetByAccountTx(ctx, tx, uid)
		if err != nil {
			if isNotFound(err) {
				return ErrRealnameMissing
			}
			return err
		}

		if current.Status != ReviewRejected {
			return ErrRealnameInProgress
		}

		if err := r.repo.RealnameAuths().DeleteByAccountTx(ctx, tx, uid); err != nil {
			return err
		}

		record, err = r.submitTx(ctx, tx, uid, input)
		return err
	})
	if err != nil {
		if IsFault(err) {
			r.logger.Error("real-name resubmit failed", "uid", uid, "error", err)
		}
		return nil, passThroughRejection(err, TextCodeRealnameFault, "real-name resubmission failed, please try again")
	}

	r.submitted(ctx, record, true)
	return record, nil
}

func (r *RealnameReview) submitted(ctx context.Context, record *RealnameAuth, resubmit bool) {
	r.logger.Info("real-name submitted", "uid", record.AccountID, "auth_type", int(record.AuthType), "resubmit", resubmit)
	r.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventRealnameSubmitted,
		AccountID: record.AccountID,
		Metadata:  map[string]any{"auth_type": int(record.AuthType), "resubmit": resubmit},
	})
}

// Confirm records the review decision for a pending submission and stamps
// the review time.
func (r *RealnameReview) Confirm(ctx context.Context, uid int64, decision ReviewDecision, comment string) (*RealnameAuth, error) {
	var target ReviewStatus
	switch decision {
	case ReviewApprove:
		target = ReviewApproved
	case ReviewReject:
		target = ReviewRejected
	default:
		return nil, newValidationError("decision must be approve or reject")
	}

	comment = strings.TrimSpace(comment)
	if err := toValidationError(validation.Errors{
		"comment": validation.Validate(comment, validation.RuneLength(0, 200)),
	}.Filter()); err != nil {
		return nil, err
	}

	var record *RealnameAuth
	err := r.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := r.repo.RealnameAuths().GetByAccountTx(ctx, tx, uid)
		if err != nil {
			if isNotFound(err) {
				return ErrRealnameMissing
			}
			return storeFault(err, "failed to load real-name record")
		}

		if current.Status != ReviewPending {
			if target == ReviewApproved {
				return ErrRealnameApproved
			}
			return ErrRealnameReviewed
		}

		reviewedAt := r.now().UTC()
		if err := r.repo.RealnameAuths().UpdateReviewTx(ctx, tx, uid, target, reviewedAt, comment); err != nil {
			return storeFault(err, "failed to store review")
		}

		current.Status = target
		current.ReviewedAt = &reviewedAt
		current.Comment = comment
		record = current
		return nil
	})
	if err != nil {
		return nil, passThroughRejection(err, TextCodeStoreFault, "failed to review real-name verification")
	}

	r.logger.Info("real-name reviewed", "uid", uid, "status", record.Status.String())
	r.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventRealnameReviewed,
		AccountID: uid,
		Metadata:  map[string]any{"status": record.Status.String(), "comment": comment},
	})
	return record, nil
}

// Get returns the submission of uid.
func (r *RealnameReview) Get(ctx context.Context, uid int64) (*RealnameAuth, error) {
	record, err := r.repo.RealnameAuths().GetByAccount(ctx, uid)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrRealnameMissing
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load real-name record").
			WithTextCode(TextCodeStoreFault)
	}
	return record, nil
}
