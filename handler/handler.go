package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/goccy/go-json"

	"github.com/fleetware/iot-provisioner/core/logger"
	"github.com/fleetware/iot-provisioner/core/schema"
	"github.com/fleetware/iot-provisioner/fleet"
	"github.com/fleetware/iot-provisioner/provision"
)

// DeviceDirectory resolves device uuids and service names in the fleet cloud.
type DeviceDirectory interface {
	GetDevice(ctx context.Context, uuid string) (fleet.Device, error)
	GetServiceByName(ctx context.Context, applicationID int64, name string) (fleet.Service, error)
}

// Provisioner runs the create and destroy workflows.
type Provisioner interface {
	Create(ctx context.Context, target provision.Target) (provision.Outcome, error)
	Destroy(ctx context.Context, target provision.Target) (provision.Outcome, error)
}

const requestSchemaID = "provision-request"

var requestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"uuid": { "type": "string", "minLength": 1 },
		"service": { "type": "string", "minLength": 1 }
	},
	"required": ["uuid"]
}`

// Builder holds the collaborators for the Handler.
type Builder struct {
	// Directory resolves devices and services. This is mandatory.
	Directory DeviceDirectory
	// Provisioner runs the workflows. This is mandatory.
	Provisioner Provisioner
}

// Handler normalizes inbound events, dispatches them to the provisioner and
// renders outcomes and errors as transport responses.
type Handler struct {
	directory   DeviceDirectory
	provisioner Provisioner
	validator   *schema.Validator
}

// MustNewHandler returns a new Handler.
func MustNewHandler(b *Builder) *Handler {
	if b.Directory == nil {
		panic("device directory is missing")
	}
	if b.Provisioner == nil {
		panic("provisioner is missing")
	}
	return &Handler{
		directory:   b.Directory,
		provisioner: b.Provisioner,
		validator:   schema.MustNewValidator(map[string]string{requestSchemaID: requestSchema}),
	}
}

// gatewayEvent is the subset of the API Gateway proxy event the adapter needs.
// Payload format 1.0 carries the method in requestContext.httpMethod, format 2.0
// in requestContext.http.method.
type gatewayEvent struct {
	Body            string `json:"body"`
	IsBase64Encoded bool   `json:"isBase64Encoded"`
	RequestContext  *struct {
		HTTPMethod string `json:"httpMethod"`
		HTTP       struct {
			Method string `json:"method"`
		} `json:"http"`
	} `json:"requestContext"`
}

// HandleLambda is the Lambda entry point. It never fails the invocation; every
// error becomes a response with a status code.
func (h *Handler) HandleLambda(ctx context.Context, raw json.RawMessage) (events.APIGatewayProxyResponse, error) {
	ctx, _ = logger.ContextWithLogger(ctx)
	outcome := h.handleEvent(ctx, raw)
	return events.APIGatewayProxyResponse{StatusCode: outcome.StatusCode, Body: outcome.Body}, nil
}

func (h *Handler) handleEvent(ctx context.Context, raw []byte) provision.Outcome {
	var event gatewayEvent
	if len(raw) == 0 || json.Unmarshal(raw, &event) != nil {
		return errorOutcome(ctx, provision.NewRequestError(provision.CodeNoBody, "event is not an API gateway request"))
	}
	if event.Body == "" {
		return errorOutcome(ctx, provision.NewRequestError(provision.CodeNoBody, "request has no body"))
	}

	var method string
	switch {
	case event.RequestContext == nil:
		return errorOutcome(ctx, provision.NewRequestError(provision.CodeNoHTTP, "request context is missing"))
	case event.RequestContext.HTTP.Method != "":
		method = event.RequestContext.HTTP.Method
	case event.RequestContext.HTTPMethod != "":
		method = event.RequestContext.HTTPMethod
	default:
		return errorOutcome(ctx, provision.NewRequestError(provision.CodeNoHTTP, "no HTTP method in request context"))
	}

	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return errorOutcome(ctx, provision.NewRequestError(provision.CodeBadBody, "body is not valid base64"))
		}
		body = decoded
	}

	return h.Handle(ctx, method, body)
}

// ServeHTTP serves the same workflow on a plain HTTP surface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	outcome := h.Handle(r.Context(), r.Method, body)
	if outcome.StatusCode >= http.StatusBadRequest {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	w.WriteHeader(outcome.StatusCode)
	w.Write([]byte(outcome.Body))
}

// Handle validates the request body, resolves device and service, and dispatches
// to the workflow selected by the HTTP method.
func (h *Handler) Handle(ctx context.Context, method string, body []byte) provision.Outcome {
	outcome, err := h.dispatch(ctx, method, body)
	if err != nil {
		return errorOutcome(ctx, err)
	}
	return outcome
}

func (h *Handler) dispatch(ctx context.Context, method string, body []byte) (provision.Outcome, error) {
	if len(body) == 0 {
		return provision.Outcome{}, provision.NewRequestError(provision.CodeNoBody, "request has no body")
	}
	if err := h.validator.ValidateBytes(body, requestSchemaID); err != nil {
		return provision.Outcome{}, provision.NewRequestError(provision.CodeBadBody, err.Error())
	}

	var request struct {
		UUID    string `json:"uuid"`
		Service string `json:"service"`
	}
	if err := json.Unmarshal(body, &request); err != nil {
		return provision.Outcome{}, provision.NewRequestError(provision.CodeBadBody, "body is not valid JSON")
	}

	device, err := h.directory.GetDevice(ctx, request.UUID)
	if err != nil {
		return provision.Outcome{}, err
	}
	target := provision.Target{DeviceID: device.ID, DeviceUUID: device.UUID}
	if request.Service != "" {
		service, err := h.directory.GetServiceByName(ctx, device.ApplicationID, request.Service)
		if err != nil {
			return provision.Outcome{}, err
		}
		target.ServiceID = service.ID
		target.ServiceName = service.Name
	}

	ctx, rlog := logger.ContextWithDevice(ctx, request.UUID)
	switch method {
	case http.MethodPost:
		rlog.Infof("creating device %s for service %q", request.UUID, request.Service)
		return h.provisioner.Create(ctx, target)
	case http.MethodDelete:
		rlog.Infof("deleting device %s for service %q", request.UUID, request.Service)
		return h.provisioner.Destroy(ctx, target)
	default:
		return provision.Outcome{}, provision.NewRequestError(provision.CodeBadMethod, "unsupported method "+method)
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// errorOutcome renders a failure as a response. The body always carries enough
// detail to diagnose which step failed.
func errorOutcome(ctx context.Context, err error) provision.Outcome {
	logger.FromContext(ctx).Warnf("request failed: %v", err)

	body := errorBody{Code: "internal.error", Message: err.Error()}
	var perr *provision.Error
	if errors.As(err, &perr) {
		body.Code = perr.Code
		message := perr.Message
		if perr.Err != nil {
			if message != "" {
				message += ": "
			}
			message += perr.Err.Error()
		}
		body.Message = message
	}

	data, _ := json.Marshal(body)
	return provision.Outcome{StatusCode: provision.ClassifyStatus(err), Body: string(data)}
}
