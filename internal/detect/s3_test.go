package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/synaccel/sentinel/internal/core"
)

type fakeS3 struct {
	buckets      []string
	acls         map[string][]s3types.Grant
	publicPolicy map[string]bool
	pab          map[string]*s3types.PublicAccessBlockConfiguration
	listErr      error
	aclErr       map[string]error
}

func (f *fakeS3) ListBuckets(_ context.Context, _ *s3svc.ListBucketsInput, _ ...func(*s3svc.Options)) (*s3svc.ListBucketsOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := &s3svc.ListBucketsOutput{}
	for _, name := range f.buckets {
		out.Buckets = append(out.Buckets, s3types.Bucket{Name: aws.String(name)})
	}
	return out, nil
}

func (f *fakeS3) GetBucketAcl(_ context.Context, params *s3svc.GetBucketAclInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketAclOutput, error) {
	name := aws.ToString(params.Bucket)
	if err := f.aclErr[name]; err != nil {
		return nil, err
	}
	return &s3svc.GetBucketAclOutput{Grants: f.acls[name]}, nil
}

func (f *fakeS3) GetBucketPolicyStatus(_ context.Context, params *s3svc.GetBucketPolicyStatusInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketPolicyStatusOutput, error) {
	name := aws.ToString(params.Bucket)
	public, ok := f.publicPolicy[name]
	if !ok {
		return nil, errors.New("NoSuchBucketPolicy")
	}
	return &s3svc.GetBucketPolicyStatusOutput{
		PolicyStatus: &s3types.PolicyStatus{IsPublic: aws.Bool(public)},
	}, nil
}

func (f *fakeS3) GetPublicAccessBlock(_ context.Context, params *s3svc.GetPublicAccessBlockInput, _ ...func(*s3svc.Options)) (*s3svc.GetPublicAccessBlockOutput, error) {
	cfg, ok := f.pab[aws.ToString(params.Bucket)]
	if !ok {
		return nil, errors.New("NoSuchPublicAccessBlockConfiguration")
	}
	return &s3svc.GetPublicAccessBlockOutput{PublicAccessBlockConfiguration: cfg}, nil
}

func fullBlock() *s3types.PublicAccessBlockConfiguration {
	return &s3types.PublicAccessBlockConfiguration{
		BlockPublicAcls:       aws.Bool(true),
		IgnorePublicAcls:      aws.Bool(true),
		BlockPublicPolicy:     aws.Bool(true),
		RestrictPublicBuckets: aws.Bool(true),
	}
}

func TestS3Detector_PublicACL(t *testing.T) {
	fake := &fakeS3{
		buckets: []string{"open-bucket"},
		acls: map[string][]s3types.Grant{
			"open-bucket": {{
				Grantee:    &s3types.Grantee{URI: aws.String(allUsersURI), Type: s3types.TypeGroup},
				Permission: s3types.PermissionRead,
			}},
		},
	}
	d := NewS3Detector(fake, zerolog.Nop())
	findings, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Category != core.CategoryS3Public || f.Identity != "open-bucket" {
		t.Errorf("unexpected finding: %+v", f)
	}
}

func TestS3Detector_PublicPolicy(t *testing.T) {
	fake := &fakeS3{
		buckets:      []string{"policy-bucket"},
		publicPolicy: map[string]bool{"policy-bucket": true},
	}
	d := NewS3Detector(fake, zerolog.Nop())
	findings, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(findings) != 1 || findings[0].Attributes["reason"] != "public bucket policy" {
		t.Errorf("expected public bucket policy finding, got %+v", findings)
	}
}

func TestS3Detector_IncompletePublicAccessBlock(t *testing.T) {
	cfg := fullBlock()
	cfg.RestrictPublicBuckets = aws.Bool(false)
	fake := &fakeS3{
		buckets: []string{"half-blocked"},
		pab:     map[string]*s3types.PublicAccessBlockConfiguration{"half-blocked": cfg},
	}
	d := NewS3Detector(fake, zerolog.Nop())
	findings, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
}

func TestS3Detector_LockedDownBucketClean(t *testing.T) {
	fake := &fakeS3{
		buckets: []string{"private"},
		pab:     map[string]*s3types.PublicAccessBlockConfiguration{"private": fullBlock()},
	}
	d := NewS3Detector(fake, zerolog.Nop())
	findings, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("locked-down bucket flagged: %+v", findings)
	}
}

func TestS3Detector_PerBucketErrorIsolated(t *testing.T) {
	fake := &fakeS3{
		buckets: []string{"denied", "open-bucket"},
		aclErr:  map[string]error{"denied": errors.New("AccessDenied")},
		acls: map[string][]s3types.Grant{
			"open-bucket": {{
				Grantee:    &s3types.Grantee{URI: aws.String(authenticatedUsersURI), Type: s3types.TypeGroup},
				Permission: s3types.PermissionFullControl,
			}},
		},
		pab: map[string]*s3types.PublicAccessBlockConfiguration{"denied": fullBlock()},
	}
	d := NewS3Detector(fake, zerolog.Nop())
	findings, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(findings) != 1 || findings[0].Identity != "open-bucket" {
		t.Errorf("expected only open-bucket despite per-bucket error, got %+v", findings)
	}
}

func TestS3Detector_ListFailureFatal(t *testing.T) {
	fake := &fakeS3{listErr: errors.New("throttled")}
	d := NewS3Detector(fake, zerolog.Nop())
	if _, err := d.Detect(context.Background()); err == nil {
		t.Error("expected error when bucket listing fails")
	}
}
