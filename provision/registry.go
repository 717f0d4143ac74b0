package provision

import "context"

// ThingRecord is the registry's record of a provisioned device identity.
type ThingRecord struct {
	Name string
	ARN  string
}

// Certificate is the key pair and certificate bound to a thing.
type Certificate struct {
	ARN        string
	ID         string
	PEM        string
	PrivateKey string
}

// CertificateStatus is the lifecycle status of a certificate in the registry.
type CertificateStatus string

const (
	// CertificateActive marks a certificate usable for authentication.
	CertificateActive CertificateStatus = "ACTIVE"
	// CertificateInactive marks a certificate for deletion; the registry refuses
	// to delete active certificates.
	CertificateInactive CertificateStatus = "INACTIVE"
)

// Registry abstracts the remote device registry. Every operation maps to a single
// remote call. Implementations must return an *Error with Kind KindNotFound when
// the referenced resource does not exist, as the workflows rely on that
// distinction for idempotent behavior.
type Registry interface {
	DescribeThing(ctx context.Context, name string) (ThingRecord, error)
	CreateThing(ctx context.Context, name string) (ThingRecord, error)
	CreateKeysAndCertificate(ctx context.Context) (Certificate, error)
	AttachPolicy(ctx context.Context, policyName, certificateARN string) error
	AttachThingPrincipal(ctx context.Context, thingName, certificateARN string) error
	ListThingPrincipals(ctx context.Context, thingName string) ([]string, error)
	DetachThingPrincipal(ctx context.Context, thingName, certificateARN string) error
	DetachPolicy(ctx context.Context, policyName, certificateARN string) error
	UpdateCertificate(ctx context.Context, certificateID string, status CertificateStatus) error
	DeleteCertificate(ctx context.Context, certificateID string) error
	DeleteThing(ctx context.Context, name string) error
}

// Target identifies the device, and optionally one service on it, that a workflow
// operates on. A zero ServiceID means device-level variable scope.
type Target struct {
	DeviceID    int64
	DeviceUUID  string
	ServiceID   int64
	ServiceName string
}

// ServiceScoped reports whether variables are written at service level.
func (t Target) ServiceScoped() bool {
	return t.ServiceID != 0
}

// VarStore abstracts the fleet's per-device and per-device-service variables.
type VarStore interface {
	SetVar(ctx context.Context, target Target, key, value string) error
	RemoveVar(ctx context.Context, target Target, key string) error
}
