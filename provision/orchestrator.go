package provision

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/fleetware/iot-provisioner/core/logger"
)

// Variable names distributed to the fleet.
const (
	VarCert       = "AWS_CERT"
	VarPrivateKey = "AWS_PRIVATE_KEY"
)

// Outcome is the result of a completed workflow, ready for the transport layer.
type Outcome struct {
	StatusCode int
	Body       string
}

// Orchestrator runs the create and destroy workflows against a registry and a
// variable store. It holds no state across requests; a single instance can serve
// concurrent requests for different devices. Concurrent requests for the same
// device are not mutually excluded.
type Orchestrator struct {
	registry   Registry
	vars       VarStore
	policyName string
}

// NewOrchestrator returns an orchestrator that attaches policyName to every
// certificate it issues.
func NewOrchestrator(registry Registry, vars VarStore, policyName string) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		vars:       vars,
		policyName: policyName,
	}
}

// Create registers the device in the registry and distributes its credentials.
//
// A thing that already exists terminates the workflow with a conflict before any
// mutation. There is no rollback if a later step fails: a failure during
// certificate creation or attachment leaves the thing with partial resources and
// no variables written. This is a known limitation.
func (o *Orchestrator) Create(ctx context.Context, target Target) (Outcome, error) {
	rlog := logger.FromContext(ctx)

	if err := o.ensureThingAbsent(ctx, target.DeviceUUID); err != nil {
		return Outcome{}, err
	}

	thing, err := o.registry.CreateThing(ctx, target.DeviceUUID)
	if err != nil {
		return Outcome{}, err
	}

	cert, err := o.registry.CreateKeysAndCertificate(ctx)
	if err != nil {
		return Outcome{}, err
	}

	if err := o.registry.AttachPolicy(ctx, o.policyName, cert.ARN); err != nil {
		return Outcome{}, err
	}

	if err := o.registry.AttachThingPrincipal(ctx, thing.Name, cert.ARN); err != nil {
		return Outcome{}, err
	}

	if err := o.writeCredentials(ctx, target, cert); err != nil {
		return Outcome{}, err
	}

	rlog.Infof("created device %s", target.DeviceUUID)
	return Outcome{StatusCode: http.StatusCreated, Body: "device created"}, nil
}

// ensureThingAbsent guards against duplicate provisioning. The registry's
// thing-creation call silently accepts an existing name, which would mask
// duplicate-provisioning bugs, so the workflow checks explicitly first.
func (o *Orchestrator) ensureThingAbsent(ctx context.Context, name string) error {
	_, err := o.registry.DescribeThing(ctx, name)
	if err == nil {
		return &Error{Kind: KindConflict, Code: CodeThingExists, Message: "thing already exists"}
	}
	if IsNotFound(err) {
		return nil
	}
	return err
}

func (o *Orchestrator) writeCredentials(ctx context.Context, target Target, cert Certificate) error {
	encoded := base64.StdEncoding.EncodeToString([]byte(cert.PEM))
	if err := o.vars.SetVar(ctx, target, VarCert, encoded); err != nil {
		return err
	}
	encoded = base64.StdEncoding.EncodeToString([]byte(cert.PrivateKey))
	return o.vars.SetVar(ctx, target, VarPrivateKey, encoded)
}

// Destroy removes the device's registry resources and fleet variables. It is
// best-effort and idempotent: a missing thing, a thing without a certificate
// principal, and already-removed variables are all tolerated, and the workflow
// reports success regardless of how much state it actually found.
func (o *Orchestrator) Destroy(ctx context.Context, target Target) (Outcome, error) {
	rlog := logger.FromContext(ctx)

	certARN, certID, err := o.findCertificate(ctx, target.DeviceUUID)
	if err != nil {
		return Outcome{}, err
	}

	if certID != "" {
		if err := o.retireCertificate(ctx, target.DeviceUUID, certARN, certID); err != nil {
			return Outcome{}, err
		}
		rlog.Infof("deleted certificate %s", certID)
	} else {
		rlog.Warnf("certificate not found for thing %s", target.DeviceUUID)
	}

	if err := o.registry.DeleteThing(ctx, target.DeviceUUID); err != nil {
		if !IsNotFound(err) {
			return Outcome{}, err
		}
		rlog.Infof("thing %s not found in registry", target.DeviceUUID)
	}

	if err := o.removeCredentials(ctx, target); err != nil {
		return Outcome{}, err
	}

	rlog.Infof("deleted device %s", target.DeviceUUID)
	return Outcome{StatusCode: http.StatusOK, Body: "device deleted"}, nil
}

// findCertificate scans the thing's principals for the managed certificate and
// returns its ARN and ID. A missing thing or a thing without a certificate-shaped
// principal yields empty results and no error. If a thing ever has several
// certificate principals only the first one is found.
func (o *Orchestrator) findCertificate(ctx context.Context, thingName string) (certARN, certID string, err error) {
	principals, err := o.registry.ListThingPrincipals(ctx, thingName)
	if err != nil {
		if IsNotFound(err) {
			return "", "", nil
		}
		return "", "", err
	}
	for _, p := range principals {
		if strings.Contains(p, "cert") && strings.Contains(p, "/") {
			return p, p[strings.LastIndex(p, "/")+1:], nil
		}
	}
	return "", "", nil
}

// retireCertificate detaches the certificate from thing and policy, deactivates it
// and deletes it. The certificate was just confirmed to exist, so none of the four
// calls tolerates a not-found.
func (o *Orchestrator) retireCertificate(ctx context.Context, thingName, certARN, certID string) error {
	if err := o.registry.DetachThingPrincipal(ctx, thingName, certARN); err != nil {
		return err
	}
	if err := o.registry.DetachPolicy(ctx, o.policyName, certARN); err != nil {
		return err
	}
	if err := o.registry.UpdateCertificate(ctx, certID, CertificateInactive); err != nil {
		return err
	}
	return o.registry.DeleteCertificate(ctx, certID)
}

// removeCredentials removes both variables, swallowing removals of variables that
// do not exist.
func (o *Orchestrator) removeCredentials(ctx context.Context, target Target) error {
	for _, key := range []string{VarCert, VarPrivateKey} {
		if err := o.vars.RemoveVar(ctx, target, key); err != nil && !IsNotFound(err) {
			return err
		}
	}
	return nil
}
