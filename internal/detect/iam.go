package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/rs/zerolog"

	"github.com/synaccel/sentinel/internal/core"
)

// IAMDetector flags users without MFA and access keys past the configured
// age limit.
type IAMDetector struct {
	client    iamAPIClient
	maxKeyAge time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewIAMDetector creates the IAM exposure detector.
func NewIAMDetector(client iamAPIClient, cfg core.IAMDetectorConfig, logger zerolog.Logger) *IAMDetector {
	maxAge := cfg.MaxKeyAgeDays
	if maxAge <= 0 {
		maxAge = 90
	}
	return &IAMDetector{
		client:    client,
		maxKeyAge: time.Duration(maxAge) * 24 * time.Hour,
		logger:    logger.With().Str("detector", "iam_exposure").Logger(),
		now:       time.Now,
	}
}

func (d *IAMDetector) Name() string { return "iam_exposure" }

// Detect pages through all users; per-user API failures are logged and the
// scan continues.
func (d *IAMDetector) Detect(ctx context.Context) ([]core.Finding, error) {
	var findings []core.Finding

	paginator := iamsvc.NewListUsersPaginator(d.client, &iamsvc.ListUsersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing users: %w", err)
		}
		for _, user := range page.Users {
			findings = append(findings, d.inspectUser(ctx, user)...)
		}
	}
	return findings, nil
}

func (d *IAMDetector) inspectUser(ctx context.Context, user iamtypes.User) []core.Finding {
	username := aws.ToString(user.UserName)
	arn := aws.ToString(user.Arn)
	var findings []core.Finding

	mfa, err := d.client.ListMFADevices(ctx, &iamsvc.ListMFADevicesInput{UserName: user.UserName})
	if err != nil {
		d.logger.Warn().Err(err).Str("user", username).Msg("listing MFA devices")
	} else if len(mfa.MFADevices) == 0 {
		findings = append(findings, core.Finding{
			Category: core.CategoryIAMNoMFA,
			Identity: arn,
			Attributes: map[string]string{
				"user": username,
			},
		})
	}

	keys, err := d.client.ListAccessKeys(ctx, &iamsvc.ListAccessKeysInput{UserName: user.UserName})
	if err != nil {
		d.logger.Warn().Err(err).Str("user", username).Msg("listing access keys")
		return findings
	}
	for _, key := range keys.AccessKeyMetadata {
		if key.CreateDate == nil {
			continue
		}
		age := d.now().Sub(*key.CreateDate)
		if age > d.maxKeyAge {
			findings = append(findings, core.Finding{
				Category: core.CategoryIAMOldAccessKey,
				Identity: aws.ToString(key.AccessKeyId),
				Attributes: map[string]string{
					"user":     username,
					"age_days": fmt.Sprintf("%d", int(age.Hours()/24)),
				},
			})
		}
	}
	return findings
}
