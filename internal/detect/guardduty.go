package detect

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	guarddutysvc "github.com/aws/aws-sdk-go-v2/service/guardduty"
	"github.com/rs/zerolog"

	"github.com/synaccel/sentinel/internal/core"
)

// GuardDutyDetector pulls recent findings from the account's GuardDuty
// detector and maps them into sentinel findings. Severity at or above the
// configured cutoff lands in GUARDDUTY_HIGH_SEV; the rest in
// GUARDDUTY_FINDING.
type GuardDutyDetector struct {
	client guardDutyAPIClient
	cfg    core.GuardDutyDetectorConfig
	logger zerolog.Logger
}

// NewGuardDutyDetector creates the GuardDuty connector.
func NewGuardDutyDetector(client guardDutyAPIClient, cfg core.GuardDutyDetectorConfig, logger zerolog.Logger) *GuardDutyDetector {
	if cfg.MaxFindings <= 0 {
		cfg.MaxFindings = 50
	}
	if cfg.HighSeverity <= 0 {
		cfg.HighSeverity = 7.0
	}
	return &GuardDutyDetector{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("detector", "guardduty").Logger(),
	}
}

func (d *GuardDutyDetector) Name() string { return "guardduty" }

// Detect resolves the account's detector and retrieves its recent findings.
// An account without a GuardDuty detector yields no findings, not an error.
func (d *GuardDutyDetector) Detect(ctx context.Context) ([]core.Finding, error) {
	detectors, err := d.client.ListDetectors(ctx, &guarddutysvc.ListDetectorsInput{})
	if err != nil {
		return nil, fmt.Errorf("listing GuardDuty detectors: %w", err)
	}
	if len(detectors.DetectorIds) == 0 {
		d.logger.Info().Msg("no GuardDuty detector in this account/region")
		return nil, nil
	}
	detectorID := detectors.DetectorIds[0]

	ids, err := d.client.ListFindings(ctx, &guarddutysvc.ListFindingsInput{
		DetectorId: aws.String(detectorID),
	})
	if err != nil {
		return nil, fmt.Errorf("listing GuardDuty findings: %w", err)
	}
	findingIDs := ids.FindingIds
	if len(findingIDs) == 0 {
		return nil, nil
	}
	if len(findingIDs) > d.cfg.MaxFindings {
		findingIDs = findingIDs[:d.cfg.MaxFindings]
	}

	out, err := d.client.GetFindings(ctx, &guarddutysvc.GetFindingsInput{
		DetectorId: aws.String(detectorID),
		FindingIds: findingIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieving GuardDuty findings: %w", err)
	}

	var findings []core.Finding
	for _, f := range out.Findings {
		category := core.CategoryGuardDutyFinding
		severity := aws.ToFloat64(f.Severity)
		if severity >= d.cfg.HighSeverity {
			category = core.CategoryGuardDutyHighSev
		}
		findings = append(findings, core.Finding{
			Category: category,
			Identity: aws.ToString(f.Id),
			Attributes: map[string]string{
				"finding_type": aws.ToString(f.Type),
				"title":        aws.ToString(f.Title),
				"severity":     fmt.Sprintf("%.1f", severity),
			},
		})
	}
	return findings, nil
}
