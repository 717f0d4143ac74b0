package provision

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/aws/aws-sdk-go-v2/service/iot/types"
)

// AWSRegistry implements Registry on top of AWS IoT Core.
type AWSRegistry struct {
	client *iot.Client
}

// NewAWSRegistry returns a registry for the given AWS configuration.
func NewAWSRegistry(cfg aws.Config) *AWSRegistry {
	return &AWSRegistry{client: iot.NewFromConfig(cfg)}
}

// DescribeThing looks up a thing by name.
func (r *AWSRegistry) DescribeThing(ctx context.Context, name string) (ThingRecord, error) {
	out, err := r.client.DescribeThing(ctx, &iot.DescribeThingInput{ThingName: aws.String(name)})
	if err != nil {
		return ThingRecord{}, mapRegistryError(err)
	}
	return ThingRecord{Name: aws.ToString(out.ThingName), ARN: aws.ToString(out.ThingArn)}, nil
}

// CreateThing creates a thing. Note that AWS IoT accepts the name of an existing
// thing here and silently returns it; callers who need strict creation must
// check with DescribeThing first.
func (r *AWSRegistry) CreateThing(ctx context.Context, name string) (ThingRecord, error) {
	out, err := r.client.CreateThing(ctx, &iot.CreateThingInput{ThingName: aws.String(name)})
	if err != nil {
		return ThingRecord{}, mapRegistryError(err)
	}
	return ThingRecord{Name: aws.ToString(out.ThingName), ARN: aws.ToString(out.ThingArn)}, nil
}

// CreateKeysAndCertificate issues a new key pair and an active certificate.
func (r *AWSRegistry) CreateKeysAndCertificate(ctx context.Context) (Certificate, error) {
	out, err := r.client.CreateKeysAndCertificate(ctx, &iot.CreateKeysAndCertificateInput{
		SetAsActive: true,
	})
	if err != nil {
		return Certificate{}, mapRegistryError(err)
	}
	cert := Certificate{
		ARN: aws.ToString(out.CertificateArn),
		ID:  aws.ToString(out.CertificateId),
		PEM: aws.ToString(out.CertificatePem),
	}
	if out.KeyPair != nil {
		cert.PrivateKey = aws.ToString(out.KeyPair.PrivateKey)
	}
	return cert, nil
}

// AttachPolicy attaches the named policy to a certificate.
func (r *AWSRegistry) AttachPolicy(ctx context.Context, policyName, certificateARN string) error {
	_, err := r.client.AttachPolicy(ctx, &iot.AttachPolicyInput{
		PolicyName: aws.String(policyName),
		Target:     aws.String(certificateARN),
	})
	return mapRegistryError(err)
}

// AttachThingPrincipal attaches a certificate as a principal of a thing.
func (r *AWSRegistry) AttachThingPrincipal(ctx context.Context, thingName, certificateARN string) error {
	_, err := r.client.AttachThingPrincipal(ctx, &iot.AttachThingPrincipalInput{
		ThingName: aws.String(thingName),
		Principal: aws.String(certificateARN),
	})
	return mapRegistryError(err)
}

// ListThingPrincipals returns the principal ARNs attached to a thing.
func (r *AWSRegistry) ListThingPrincipals(ctx context.Context, thingName string) ([]string, error) {
	out, err := r.client.ListThingPrincipals(ctx, &iot.ListThingPrincipalsInput{
		ThingName: aws.String(thingName),
	})
	if err != nil {
		return nil, mapRegistryError(err)
	}
	return out.Principals, nil
}

// DetachThingPrincipal detaches a certificate from a thing.
func (r *AWSRegistry) DetachThingPrincipal(ctx context.Context, thingName, certificateARN string) error {
	_, err := r.client.DetachThingPrincipal(ctx, &iot.DetachThingPrincipalInput{
		ThingName: aws.String(thingName),
		Principal: aws.String(certificateARN),
	})
	return mapRegistryError(err)
}

// DetachPolicy detaches the named policy from a certificate.
func (r *AWSRegistry) DetachPolicy(ctx context.Context, policyName, certificateARN string) error {
	_, err := r.client.DetachPolicy(ctx, &iot.DetachPolicyInput{
		PolicyName: aws.String(policyName),
		Target:     aws.String(certificateARN),
	})
	return mapRegistryError(err)
}

// UpdateCertificate sets a certificate's status.
func (r *AWSRegistry) UpdateCertificate(ctx context.Context, certificateID string, status CertificateStatus) error {
	_, err := r.client.UpdateCertificate(ctx, &iot.UpdateCertificateInput{
		CertificateId: aws.String(certificateID),
		NewStatus:     types.CertificateStatus(status),
	})
	return mapRegistryError(err)
}

// DeleteCertificate deletes a certificate. The certificate must be inactive.
func (r *AWSRegistry) DeleteCertificate(ctx context.Context, certificateID string) error {
	_, err := r.client.DeleteCertificate(ctx, &iot.DeleteCertificateInput{
		CertificateId: aws.String(certificateID),
	})
	return mapRegistryError(err)
}

// DeleteThing deletes a thing.
func (r *AWSRegistry) DeleteThing(ctx context.Context, name string) error {
	_, err := r.client.DeleteThing(ctx, &iot.DeleteThingInput{ThingName: aws.String(name)})
	return mapRegistryError(err)
}

// mapRegistryError translates AWS IoT errors into the workflow error taxonomy,
// distinguishing only the not-found case the workflows care about.
func mapRegistryError(err error) error {
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return &Error{Kind: KindNotFound, Code: CodeRegistryNotFound, Err: err}
	}
	return &Error{Kind: KindUpstream, Code: CodeRegistryFailure, Err: err}
}
