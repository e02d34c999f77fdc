package respond

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/rs/zerolog"

	"github.com/synaccel/sentinel/internal/core"
)

// iamResponderClient is the narrow IAM interface the responder needs.
type iamResponderClient interface {
	TagUser(ctx context.Context, params *iamsvc.TagUserInput, optFns ...func(*iamsvc.Options)) (*iamsvc.TagUserOutput, error)
	ListAccessKeys(ctx context.Context, params *iamsvc.ListAccessKeysInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListAccessKeysOutput, error)
	UpdateAccessKey(ctx context.Context, params *iamsvc.UpdateAccessKeyInput, optFns ...func(*iamsvc.Options)) (*iamsvc.UpdateAccessKeyOutput, error)
}

// IAMResponder tags users without MFA and, once the policy has escalated
// far enough, deactivates their access keys.
type IAMResponder struct {
	client iamResponderClient
	dryRun bool
	logger zerolog.Logger
	now    func() time.Time
}

// NewIAMResponder creates the IAM responder.
func NewIAMResponder(client iamResponderClient, dryRun bool, logger zerolog.Logger) *IAMResponder {
	return &IAMResponder{
		client: client,
		dryRun: dryRun,
		logger: logger.With().Str("responder", "iam").Logger(),
		now:    time.Now,
	}
}

func (r *IAMResponder) Name() string { return "iam" }

// Apply enforces the IAM_NO_MFA policy. The username comes from the
// finding's attributes; findings without one are skipped.
func (r *IAMResponder) Apply(ctx context.Context, policy *core.PolicyDoc, findings []core.Finding) []ActionRecord {
	cp, ok := policy.Policy[core.CategoryIAMNoMFA]
	if !ok {
		return nil
	}
	requireMFA := cp.Flag("require_mfa")
	disableKeys := cp.Flag("disable_keys_on_nomfa")
	if !requireMFA && !disableKeys {
		return nil
	}

	var records []ActionRecord
	for _, f := range findings {
		if f.Category != core.CategoryIAMNoMFA {
			continue
		}
		user := f.Attributes["user"]
		if user == "" {
			records = append(records, ActionRecord{
				Timestamp: r.now().UTC(),
				Responder: r.Name(),
				Action:    "tag_user",
				Target:    f.Identity,
				Status:    StatusSkipped,
				Detail:    "finding carries no username",
			})
			continue
		}
		if requireMFA {
			records = append(records, r.tagUser(ctx, user))
		}
		if disableKeys {
			records = append(records, r.deactivateKeys(ctx, user)...)
		}
	}
	return records
}

func (r *IAMResponder) tagUser(ctx context.Context, user string) ActionRecord {
	rec := ActionRecord{
		Timestamp: r.now().UTC(),
		Responder: r.Name(),
		Action:    "tag_user",
		Target:    user,
	}
	if r.dryRun {
		rec.Status = StatusDryRun
		rec.Detail = "would tag user " + flagTagKey + "=NoMFA"
		return rec
	}
	_, err := r.client.TagUser(ctx, &iamsvc.TagUserInput{
		UserName: aws.String(user),
		Tags:     []iamtypes.Tag{{Key: aws.String(flagTagKey), Value: aws.String("NoMFA")}},
	})
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		r.logger.Error().Err(err).Str("user", user).Msg("tagging user")
		return rec
	}
	rec.Status = StatusSuccess
	rec.Detail = flagTagKey + "=NoMFA"
	r.logger.Info().Str("user", user).Msg("user tagged for missing MFA")
	return rec
}

func (r *IAMResponder) deactivateKeys(ctx context.Context, user string) []ActionRecord {
	keys, err := r.client.ListAccessKeys(ctx, &iamsvc.ListAccessKeysInput{UserName: aws.String(user)})
	if err != nil {
		return []ActionRecord{{
			Timestamp: r.now().UTC(),
			Responder: r.Name(),
			Action:    "deactivate_access_key",
			Target:    user,
			Status:    StatusFailed,
			Error:     err.Error(),
		}}
	}

	var records []ActionRecord
	for _, key := range keys.AccessKeyMetadata {
		if key.Status != iamtypes.StatusTypeActive {
			continue
		}
		keyID := aws.ToString(key.AccessKeyId)
		rec := ActionRecord{
			Timestamp: r.now().UTC(),
			Responder: r.Name(),
			Action:    "deactivate_access_key",
			Target:    keyID,
		}
		if r.dryRun {
			rec.Status = StatusDryRun
			rec.Detail = "would deactivate key for user " + user
			records = append(records, rec)
			continue
		}
		_, err := r.client.UpdateAccessKey(ctx, &iamsvc.UpdateAccessKeyInput{
			UserName:    aws.String(user),
			AccessKeyId: key.AccessKeyId,
			Status:      iamtypes.StatusTypeInactive,
		})
		if err != nil {
			rec.Status = StatusFailed
			rec.Error = err.Error()
			r.logger.Error().Err(err).Str("user", user).Str("key", keyID).Msg("deactivating access key")
		} else {
			rec.Status = StatusSuccess
			rec.Detail = "deactivated key for user " + user
			r.logger.Warn().Str("user", user).Str("key", keyID).Msg("access key deactivated")
		}
		records = append(records, rec)
	}
	return records
}
