package detect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"github.com/rs/zerolog"

	"github.com/synaccel/sentinel/internal/core"
)

// CloudTrailDetector applies simple rule-based anomaly detection to recent
// CloudTrail management events: per-API-name call frequency over a threshold,
// and any call whose name matches a high-risk prefix (Delete*, Put*, ...).
type CloudTrailDetector struct {
	client cloudTrailAPIClient
	cfg    core.CloudTrailDetectorConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewCloudTrailDetector creates the CloudTrail anomaly detector.
func NewCloudTrailDetector(client cloudTrailAPIClient, cfg core.CloudTrailDetectorConfig, logger zerolog.Logger) *CloudTrailDetector {
	if cfg.LookbackHours <= 0 {
		cfg.LookbackHours = 24
	}
	if cfg.FrequencyThreshold <= 0 {
		cfg.FrequencyThreshold = 50
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 1000
	}
	return &CloudTrailDetector{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("detector", "cloudtrail_anomaly").Logger(),
		now:    time.Now,
	}
}

func (d *CloudTrailDetector) Name() string { return "cloudtrail_anomaly" }

// Detect pulls events for the lookback window and runs both rules over them.
func (d *CloudTrailDetector) Detect(ctx context.Context) ([]core.Finding, error) {
	events, err := d.fetchEvents(ctx)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	findings := d.frequencyAnomalies(events)
	findings = append(findings, d.highRiskActions(events)...)
	return findings, nil
}

// fetchEvents pages LookupEvents until the window is exhausted or MaxEvents
// is reached. LookupEvents is heavily rate limited, so the cap matters.
func (d *CloudTrailDetector) fetchEvents(ctx context.Context) ([]cttypes.Event, error) {
	end := d.now().UTC()
	start := end.Add(-time.Duration(d.cfg.LookbackHours) * time.Hour)

	var events []cttypes.Event
	var nextToken *string
	for {
		out, err := d.client.LookupEvents(ctx, &cloudtrailsvc.LookupEventsInput{
			StartTime:  aws.Time(start),
			EndTime:    aws.Time(end),
			MaxResults: aws.Int32(50),
			NextToken:  nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("looking up CloudTrail events: %w", err)
		}
		events = append(events, out.Events...)
		if len(events) >= d.cfg.MaxEvents || out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	if len(events) > d.cfg.MaxEvents {
		events = events[:d.cfg.MaxEvents]
	}
	return events, nil
}

func (d *CloudTrailDetector) frequencyAnomalies(events []cttypes.Event) []core.Finding {
	counts := make(map[string]int)
	for _, e := range events {
		counts[aws.ToString(e.EventName)]++
	}

	var findings []core.Finding
	for name, count := range counts {
		if name == "" || count < d.cfg.FrequencyThreshold {
			continue
		}
		findings = append(findings, core.Finding{
			Category: core.CategoryAPIFreqAnomaly,
			Identity: name,
			Attributes: map[string]string{
				"event_name": name,
				"count":      fmt.Sprintf("%d", count),
				"threshold":  fmt.Sprintf("%d", d.cfg.FrequencyThreshold),
			},
		})
	}
	return findings
}

func (d *CloudTrailDetector) highRiskActions(events []cttypes.Event) []core.Finding {
	var findings []core.Finding
	for _, e := range events {
		name := aws.ToString(e.EventName)
		if !d.isHighRisk(name) {
			continue
		}
		attrs := map[string]string{
			"event_name": name,
			"user":       aws.ToString(e.Username),
		}
		if e.EventTime != nil {
			attrs["time"] = e.EventTime.UTC().Format(time.RFC3339)
		}
		findings = append(findings, core.Finding{
			Category:   core.CategoryHighRiskAction,
			Identity:   aws.ToString(e.EventId),
			Attributes: attrs,
		})
	}
	return findings
}

func (d *CloudTrailDetector) isHighRisk(eventName string) bool {
	for _, prefix := range d.cfg.HighRiskPrefixes {
		if prefix != "" && strings.HasPrefix(eventName, prefix) {
			return true
		}
	}
	return false
}
