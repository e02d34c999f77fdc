// Package detect implements the AWS detectors that feed the sentinel loop:
// S3 public exposure, IAM exposure, CloudTrail anomalies, and GuardDuty
// findings. Each detector talks to a narrow client interface so tests can
// substitute fakes for the AWS SDK.
package detect

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	guarddutysvc "github.com/aws/aws-sdk-go-v2/service/guardduty"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/synaccel/sentinel/internal/core"
)

// Detector produces findings for one risk surface. Detectors isolate
// per-resource failures internally; a returned error means the whole surface
// could not be inspected.
type Detector interface {
	Name() string
	Detect(ctx context.Context) ([]core.Finding, error)
}

// s3APIClient is the narrow S3 interface used by the public-access detector.
type s3APIClient interface {
	ListBuckets(ctx context.Context, params *s3svc.ListBucketsInput, optFns ...func(*s3svc.Options)) (*s3svc.ListBucketsOutput, error)
	GetBucketAcl(ctx context.Context, params *s3svc.GetBucketAclInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketAclOutput, error)
	GetBucketPolicyStatus(ctx context.Context, params *s3svc.GetBucketPolicyStatusInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketPolicyStatusOutput, error)
	GetPublicAccessBlock(ctx context.Context, params *s3svc.GetPublicAccessBlockInput, optFns ...func(*s3svc.Options)) (*s3svc.GetPublicAccessBlockOutput, error)
}

// iamAPIClient is the narrow IAM interface for user exposure checks. It
// embeds ListUsersAPIClient so the SDK paginator can be used directly.
type iamAPIClient interface {
	iamsvc.ListUsersAPIClient
	ListMFADevices(ctx context.Context, params *iamsvc.ListMFADevicesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListMFADevicesOutput, error)
	ListAccessKeys(ctx context.Context, params *iamsvc.ListAccessKeysInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListAccessKeysOutput, error)
}

// cloudTrailAPIClient is the narrow CloudTrail interface for pulling recent
// management events.
type cloudTrailAPIClient interface {
	LookupEvents(ctx context.Context, params *cloudtrailsvc.LookupEventsInput, optFns ...func(*cloudtrailsvc.Options)) (*cloudtrailsvc.LookupEventsOutput, error)
}

// guardDutyAPIClient is the narrow GuardDuty interface for retrieving
// findings from the account's detector.
type guardDutyAPIClient interface {
	ListDetectors(ctx context.Context, params *guarddutysvc.ListDetectorsInput, optFns ...func(*guarddutysvc.Options)) (*guarddutysvc.ListDetectorsOutput, error)
	ListFindings(ctx context.Context, params *guarddutysvc.ListFindingsInput, optFns ...func(*guarddutysvc.Options)) (*guarddutysvc.ListFindingsOutput, error)
	GetFindings(ctx context.Context, params *guarddutysvc.GetFindingsInput, optFns ...func(*guarddutysvc.Options)) (*guarddutysvc.GetFindingsOutput, error)
}

// Clients bundles the AWS service clients the detectors use.
type Clients struct {
	S3         s3APIClient
	IAM        iamAPIClient
	CloudTrail cloudTrailAPIClient
	GuardDuty  guardDutyAPIClient
}

// NewClients creates production SDK clients from an AWS config.
func NewClients(cfg aws.Config) *Clients {
	return &Clients{
		S3:         s3svc.NewFromConfig(cfg),
		IAM:        iamsvc.NewFromConfig(cfg),
		CloudTrail: cloudtrailsvc.NewFromConfig(cfg),
		GuardDuty:  guarddutysvc.NewFromConfig(cfg),
	}
}

// LoadAWSConfig resolves AWS credentials and region from the default chain,
// applying the optional profile and region overrides from the sentinel
// config.
func LoadAWSConfig(ctx context.Context, cfg core.AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}

// Enabled builds the detector set selected by the config.
func Enabled(cfg *core.Config, clients *Clients, logger zerolog.Logger) []Detector {
	var detectors []Detector
	if cfg.Detectors.S3.Enabled {
		detectors = append(detectors, NewS3Detector(clients.S3, logger))
	}
	if cfg.Detectors.IAM.Enabled {
		detectors = append(detectors, NewIAMDetector(clients.IAM, cfg.Detectors.IAM, logger))
	}
	if cfg.Detectors.CloudTrail.Enabled {
		detectors = append(detectors, NewCloudTrailDetector(clients.CloudTrail, cfg.Detectors.CloudTrail, logger))
	}
	if cfg.Detectors.GuardDuty.Enabled {
		detectors = append(detectors, NewGuardDutyDetector(clients.GuardDuty, cfg.Detectors.GuardDuty, logger))
	}
	return detectors
}

// RunAll executes each detector, isolating failures: one unreachable surface
// is logged and skipped, the rest still contribute findings.
func RunAll(ctx context.Context, detectors []Detector, logger zerolog.Logger) []core.Finding {
	var findings []core.Finding
	for _, d := range detectors {
		out, err := d.Detect(ctx)
		if err != nil {
			logger.Error().Err(err).Str("detector", d.Name()).Msg("detector failed; skipping")
			continue
		}
		logger.Info().Str("detector", d.Name()).Int("findings", len(out)).Msg("detector finished")
		findings = append(findings, out...)
	}
	return findings
}
