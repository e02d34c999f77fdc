package detect

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/synaccel/sentinel/internal/core"
)

// ACL grantee URIs that expose a bucket beyond the owning account.
const (
	allUsersURI           = "http://acs.amazonaws.com/groups/global/AllUsers"
	authenticatedUsersURI = "http://acs.amazonaws.com/groups/global/AuthenticatedUsers"
)

// S3Detector flags buckets exposed via public ACL grants, public bucket
// policies, or an incomplete Public Access Block.
type S3Detector struct {
	client s3APIClient
	logger zerolog.Logger
}

// NewS3Detector creates the S3 public-access detector.
func NewS3Detector(client s3APIClient, logger zerolog.Logger) *S3Detector {
	return &S3Detector{
		client: client,
		logger: logger.With().Str("detector", "s3_public_access").Logger(),
	}
}

func (d *S3Detector) Name() string { return "s3_public_access" }

// Detect lists all buckets and inspects each one. Per-bucket API failures
// (access denied, region redirects) are logged and skipped so one bad bucket
// does not hide exposures elsewhere.
func (d *S3Detector) Detect(ctx context.Context) ([]core.Finding, error) {
	out, err := d.client.ListBuckets(ctx, &s3svc.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}

	var findings []core.Finding
	for _, bucket := range out.Buckets {
		name := aws.ToString(bucket.Name)
		if reason, public := d.inspectBucket(ctx, name); public {
			findings = append(findings, core.Finding{
				Category: core.CategoryS3Public,
				Identity: name,
				Attributes: map[string]string{
					"bucket": name,
					"reason": reason,
				},
			})
		}
	}
	return findings, nil
}

func (d *S3Detector) inspectBucket(ctx context.Context, name string) (string, bool) {
	acl, err := d.client.GetBucketAcl(ctx, &s3svc.GetBucketAclInput{Bucket: aws.String(name)})
	if err != nil {
		d.logger.Warn().Err(err).Str("bucket", name).Msg("checking ACL")
	} else {
		for _, grant := range acl.Grants {
			if grant.Grantee == nil {
				continue
			}
			switch aws.ToString(grant.Grantee.URI) {
			case allUsersURI:
				return fmt.Sprintf("public ACL grant (%s)", grant.Permission), true
			case authenticatedUsersURI:
				return fmt.Sprintf("ACL open to all AWS accounts (%s)", grant.Permission), true
			}
		}
	}

	policy, err := d.client.GetBucketPolicyStatus(ctx, &s3svc.GetBucketPolicyStatusInput{Bucket: aws.String(name)})
	if err != nil {
		// Buckets without a policy return an error here; that is the
		// common case, not an exposure.
		d.logger.Debug().Err(err).Str("bucket", name).Msg("checking policy status")
	} else if policy.PolicyStatus != nil && aws.ToBool(policy.PolicyStatus.IsPublic) {
		return "public bucket policy", true
	}

	pab, err := d.client.GetPublicAccessBlock(ctx, &s3svc.GetPublicAccessBlockInput{Bucket: aws.String(name)})
	if err != nil {
		// No Public Access Block configured at all.
		return "public access block not configured", true
	}
	cfg := pab.PublicAccessBlockConfiguration
	if cfg == nil ||
		!aws.ToBool(cfg.BlockPublicAcls) ||
		!aws.ToBool(cfg.IgnorePublicAcls) ||
		!aws.ToBool(cfg.BlockPublicPolicy) ||
		!aws.ToBool(cfg.RestrictPublicBuckets) {
		return "public access block not fully enabled", true
	}

	return "", false
}
