package respond

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/synaccel/sentinel/internal/core"
)

// s3ResponderClient is the narrow S3 interface the responder needs.
type s3ResponderClient interface {
	PutPublicAccessBlock(ctx context.Context, params *s3svc.PutPublicAccessBlockInput, optFns ...func(*s3svc.Options)) (*s3svc.PutPublicAccessBlockOutput, error)
	PutBucketTagging(ctx context.Context, params *s3svc.PutBucketTaggingInput, optFns ...func(*s3svc.Options)) (*s3svc.PutBucketTaggingOutput, error)
}

// S3Responder locks down or tags buckets named by S3_PUBLIC findings,
// depending on how far the policy has escalated.
type S3Responder struct {
	client s3ResponderClient
	dryRun bool
	logger zerolog.Logger
	now    func() time.Time
}

// NewS3Responder creates the S3 responder.
func NewS3Responder(client s3ResponderClient, dryRun bool, logger zerolog.Logger) *S3Responder {
	return &S3Responder{
		client: client,
		dryRun: dryRun,
		logger: logger.With().Str("responder", "s3").Logger(),
		now:    time.Now,
	}
}

func (r *S3Responder) Name() string { return "s3" }

// Apply enforces the S3_PUBLIC policy: with auto_remediate_public it applies
// a full Public Access Block and tags the bucket; with only auto_tag_only it
// tags without changing access. Failures are recorded per bucket.
func (r *S3Responder) Apply(ctx context.Context, policy *core.PolicyDoc, findings []core.Finding) []ActionRecord {
	cp, ok := policy.Policy[core.CategoryS3Public]
	if !ok {
		return nil
	}
	remediate := cp.Flag("auto_remediate_public")
	tagOnly := cp.Flag("auto_tag_only")
	if !remediate && !tagOnly {
		return nil
	}

	var records []ActionRecord
	for _, f := range findings {
		if f.Category != core.CategoryS3Public || f.Identity == "" {
			continue
		}
		bucket := f.Identity
		if remediate {
			records = append(records, r.lockBucket(ctx, bucket))
		} else {
			records = append(records, r.tagBucket(ctx, bucket, "PublicBucket"))
		}
	}
	return records
}

func (r *S3Responder) lockBucket(ctx context.Context, bucket string) ActionRecord {
	rec := ActionRecord{
		Timestamp: r.now().UTC(),
		Responder: r.Name(),
		Action:    "apply_public_access_block",
		Target:    bucket,
	}
	if r.dryRun {
		rec.Status = StatusDryRun
		rec.Detail = "would apply full public access block and tag bucket"
		return rec
	}

	_, err := r.client.PutPublicAccessBlock(ctx, &s3svc.PutPublicAccessBlockInput{
		Bucket: aws.String(bucket),
		PublicAccessBlockConfiguration: &s3types.PublicAccessBlockConfiguration{
			BlockPublicAcls:       aws.Bool(true),
			IgnorePublicAcls:      aws.Bool(true),
			BlockPublicPolicy:     aws.Bool(true),
			RestrictPublicBuckets: aws.Bool(true),
		},
	})
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		r.logger.Error().Err(err).Str("bucket", bucket).Msg("applying public access block")
		return rec
	}

	tag := r.tagBucket(ctx, bucket, "PublicAccessRemediated")
	if tag.Status == StatusFailed {
		// Access is locked down even if the tag write failed.
		rec.Status = StatusSuccess
		rec.Detail = "public access blocked; tagging failed: " + tag.Error
		return rec
	}
	rec.Status = StatusSuccess
	rec.Detail = "public access blocked and bucket tagged"
	r.logger.Info().Str("bucket", bucket).Msg("bucket locked down")
	return rec
}

func (r *S3Responder) tagBucket(ctx context.Context, bucket, value string) ActionRecord {
	rec := ActionRecord{
		Timestamp: r.now().UTC(),
		Responder: r.Name(),
		Action:    "tag_bucket",
		Target:    bucket,
	}
	if r.dryRun {
		rec.Status = StatusDryRun
		rec.Detail = "would tag bucket " + flagTagKey + "=" + value
		return rec
	}
	_, err := r.client.PutBucketTagging(ctx, &s3svc.PutBucketTaggingInput{
		Bucket: aws.String(bucket),
		Tagging: &s3types.Tagging{
			TagSet: []s3types.Tag{{Key: aws.String(flagTagKey), Value: aws.String(value)}},
		},
	})
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		r.logger.Error().Err(err).Str("bucket", bucket).Msg("tagging bucket")
		return rec
	}
	rec.Status = StatusSuccess
	rec.Detail = flagTagKey + "=" + value
	return rec
}
