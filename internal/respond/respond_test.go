package respond

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/synaccel/sentinel/internal/core"
)

type fakeS3Responder struct {
	blocked []string
	tagged  map[string]string
	pabErr  error
}

func (f *fakeS3Responder) PutPublicAccessBlock(_ context.Context, params *s3svc.PutPublicAccessBlockInput, _ ...func(*s3svc.Options)) (*s3svc.PutPublicAccessBlockOutput, error) {
	if f.pabErr != nil {
		return nil, f.pabErr
	}
	f.blocked = append(f.blocked, aws.ToString(params.Bucket))
	return &s3svc.PutPublicAccessBlockOutput{}, nil
}

func (f *fakeS3Responder) PutBucketTagging(_ context.Context, params *s3svc.PutBucketTaggingInput, _ ...func(*s3svc.Options)) (*s3svc.PutBucketTaggingOutput, error) {
	if f.tagged == nil {
		f.tagged = map[string]string{}
	}
	for _, tag := range params.Tagging.TagSet {
		f.tagged[aws.ToString(params.Bucket)] = aws.ToString(tag.Value)
	}
	return &s3svc.PutBucketTaggingOutput{}, nil
}

func s3Findings(buckets ...string) []core.Finding {
	var findings []core.Finding
	for _, b := range buckets {
		findings = append(findings, core.Finding{Category: core.CategoryS3Public, Identity: b})
	}
	return findings
}

func escalatedS3Policy(remediate bool) *core.PolicyDoc {
	doc := core.DefaultPolicy()
	doc.Policy[core.CategoryS3Public].Flags["auto_remediate_public"] = remediate
	doc.Policy[core.CategoryS3Public].Flags["auto_tag_only"] = !remediate
	return doc
}

func TestS3Responder_RemediatesWhenEscalated(t *testing.T) {
	fake := &fakeS3Responder{}
	r := NewS3Responder(fake, false, zerolog.Nop())
	records := r.Apply(context.Background(), escalatedS3Policy(true), s3Findings("open-bucket"))
	if len(records) != 1 || records[0].Status != StatusSuccess {
		t.Fatalf("unexpected records: %+v", records)
	}
	if len(fake.blocked) != 1 || fake.blocked[0] != "open-bucket" {
		t.Errorf("public access block not applied: %+v", fake.blocked)
	}
	if fake.tagged["open-bucket"] != "PublicAccessRemediated" {
		t.Errorf("bucket not tagged as remediated: %+v", fake.tagged)
	}
}

func TestS3Responder_TagOnlyBeforeEscalation(t *testing.T) {
	fake := &fakeS3Responder{}
	r := NewS3Responder(fake, false, zerolog.Nop())
	records := r.Apply(context.Background(), escalatedS3Policy(false), s3Findings("open-bucket"))
	if len(records) != 1 || records[0].Action != "tag_bucket" {
		t.Fatalf("expected tag-only action, got %+v", records)
	}
	if len(fake.blocked) != 0 {
		t.Error("tag-only policy must not change bucket access")
	}
	if fake.tagged["open-bucket"] != "PublicBucket" {
		t.Errorf("bucket not tagged: %+v", fake.tagged)
	}
}

func TestS3Responder_DryRun(t *testing.T) {
	fake := &fakeS3Responder{}
	r := NewS3Responder(fake, true, zerolog.Nop())
	records := r.Apply(context.Background(), escalatedS3Policy(true), s3Findings("open-bucket"))
	if len(records) != 1 || records[0].Status != StatusDryRun {
		t.Fatalf("expected dry-run record, got %+v", records)
	}
	if len(fake.blocked) != 0 || len(fake.tagged) != 0 {
		t.Error("dry run must not call AWS")
	}
}

func TestS3Responder_NoFlagsNoActions(t *testing.T) {
	doc := core.DefaultPolicy()
	doc.Policy[core.CategoryS3Public].Flags["auto_tag_only"] = false
	r := NewS3Responder(&fakeS3Responder{}, false, zerolog.Nop())
	if records := r.Apply(context.Background(), doc, s3Findings("b")); len(records) != 0 {
		t.Errorf("no enforcement flags set, got actions: %+v", records)
	}
}

func TestS3Responder_FailureRecorded(t *testing.T) {
	fake := &fakeS3Responder{pabErr: errors.New("AccessDenied")}
	r := NewS3Responder(fake, false, zerolog.Nop())
	records := r.Apply(context.Background(), escalatedS3Policy(true), s3Findings("open-bucket"))
	if len(records) != 1 || records[0].Status != StatusFailed || records[0].Error == "" {
		t.Errorf("expected failure record, got %+v", records)
	}
}

type fakeIAMResponder struct {
	taggedUsers []string
	keys        map[string][]iamtypes.AccessKeyMetadata
	deactivated []string
	tagErr      error
}

func (f *fakeIAMResponder) TagUser(_ context.Context, params *iamsvc.TagUserInput, _ ...func(*iamsvc.Options)) (*iamsvc.TagUserOutput, error) {
	if f.tagErr != nil {
		return nil, f.tagErr
	}
	f.taggedUsers = append(f.taggedUsers, aws.ToString(params.UserName))
	return &iamsvc.TagUserOutput{}, nil
}

func (f *fakeIAMResponder) ListAccessKeys(_ context.Context, params *iamsvc.ListAccessKeysInput, _ ...func(*iamsvc.Options)) (*iamsvc.ListAccessKeysOutput, error) {
	return &iamsvc.ListAccessKeysOutput{AccessKeyMetadata: f.keys[aws.ToString(params.UserName)]}, nil
}

func (f *fakeIAMResponder) UpdateAccessKey(_ context.Context, params *iamsvc.UpdateAccessKeyInput, _ ...func(*iamsvc.Options)) (*iamsvc.UpdateAccessKeyOutput, error) {
	f.deactivated = append(f.deactivated, aws.ToString(params.AccessKeyId))
	return &iamsvc.UpdateAccessKeyOutput{}, nil
}

func noMFAFinding(user string) core.Finding {
	return core.Finding{
		Category:   core.CategoryIAMNoMFA,
		Identity:   "arn:aws:iam::123456789012:user/" + user,
		Attributes: map[string]string{"user": user},
	}
}

func iamPolicy(requireMFA, disableKeys bool) *core.PolicyDoc {
	doc := core.DefaultPolicy()
	doc.Policy[core.CategoryIAMNoMFA].Flags["require_mfa"] = requireMFA
	doc.Policy[core.CategoryIAMNoMFA].Flags["disable_keys_on_nomfa"] = disableKeys
	return doc
}

func TestIAMResponder_TagsUserWhenMFARequired(t *testing.T) {
	fake := &fakeIAMResponder{}
	r := NewIAMResponder(fake, false, zerolog.Nop())
	records := r.Apply(context.Background(), iamPolicy(true, false), []core.Finding{noMFAFinding("bob")})
	if len(records) != 1 || records[0].Status != StatusSuccess {
		t.Fatalf("unexpected records: %+v", records)
	}
	if len(fake.taggedUsers) != 1 || fake.taggedUsers[0] != "bob" {
		t.Errorf("user not tagged: %+v", fake.taggedUsers)
	}
}

func TestIAMResponder_DeactivatesActiveKeysOnly(t *testing.T) {
	fake := &fakeIAMResponder{
		keys: map[string][]iamtypes.AccessKeyMetadata{
			"bob": {
				{AccessKeyId: aws.String("AKIAACTIVE"), Status: iamtypes.StatusTypeActive},
				{AccessKeyId: aws.String("AKIAINACTIVE"), Status: iamtypes.StatusTypeInactive},
			},
		},
	}
	r := NewIAMResponder(fake, false, zerolog.Nop())
	r.Apply(context.Background(), iamPolicy(true, true), []core.Finding{noMFAFinding("bob")})
	if len(fake.deactivated) != 1 || fake.deactivated[0] != "AKIAACTIVE" {
		t.Errorf("expected only the active key deactivated, got %+v", fake.deactivated)
	}
}

func TestIAMResponder_NoUsernameSkipped(t *testing.T) {
	fake := &fakeIAMResponder{}
	r := NewIAMResponder(fake, false, zerolog.Nop())
	finding := core.Finding{Category: core.CategoryIAMNoMFA, Identity: "arn:only"}
	records := r.Apply(context.Background(), iamPolicy(true, false), []core.Finding{finding})
	if len(records) != 1 || records[0].Status != StatusSkipped {
		t.Errorf("expected skipped record, got %+v", records)
	}
	if len(fake.taggedUsers) != 0 {
		t.Error("must not tag without a username")
	}
}

func TestIAMResponder_DryRun(t *testing.T) {
	fake := &fakeIAMResponder{
		keys: map[string][]iamtypes.AccessKeyMetadata{
			"bob": {{AccessKeyId: aws.String("AKIAACTIVE"), Status: iamtypes.StatusTypeActive}},
		},
	}
	r := NewIAMResponder(fake, true, zerolog.Nop())
	records := r.Apply(context.Background(), iamPolicy(true, true), []core.Finding{noMFAFinding("bob")})
	for _, rec := range records {
		if rec.Status != StatusDryRun {
			t.Errorf("expected dry-run, got %+v", rec)
		}
	}
	if len(fake.taggedUsers) != 0 || len(fake.deactivated) != 0 {
		t.Error("dry run must not call AWS")
	}
}

func TestIAMResponder_IgnoresOtherCategories(t *testing.T) {
	fake := &fakeIAMResponder{}
	r := NewIAMResponder(fake, false, zerolog.Nop())
	finding := core.Finding{Category: core.CategoryS3Public, Identity: "bucket"}
	if records := r.Apply(context.Background(), iamPolicy(true, true), []core.Finding{finding}); len(records) != 0 {
		t.Errorf("S3 finding handled by IAM responder: %+v", records)
	}
}
