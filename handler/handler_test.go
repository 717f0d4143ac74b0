package handler_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/fleetware/iot-provisioner/fleet"
	"github.com/fleetware/iot-provisioner/handler"
	"github.com/fleetware/iot-provisioner/provision"
)

const testUUID = "9a6b3f0dc8e542efb24a7a1b6fca1b1e"

type fakeDirectory struct{}

func (f *fakeDirectory) GetDevice(ctx context.Context, uuid string) (fleet.Device, error) {
	if uuid != testUUID {
		return fleet.Device{}, provision.NewRequestError(provision.CodeDeviceNotFound, "no device with uuid "+uuid)
	}
	return fleet.Device{ID: 7, UUID: uuid, ApplicationID: 3}, nil
}

func (f *fakeDirectory) GetServiceByName(ctx context.Context, applicationID int64, name string) (fleet.Service, error) {
	if name != "telemetry" {
		return fleet.Service{}, provision.NewRequestError(provision.CodeServiceNotFound, "no service "+name)
	}
	return fleet.Service{ID: 42, Name: name}, nil
}

type fakeProvisioner struct {
	created   []provision.Target
	destroyed []provision.Target
	err       error
}

func (f *fakeProvisioner) Create(ctx context.Context, target provision.Target) (provision.Outcome, error) {
	if f.err != nil {
		return provision.Outcome{}, f.err
	}
	f.created = append(f.created, target)
	return provision.Outcome{StatusCode: 201, Body: "device created"}, nil
}

func (f *fakeProvisioner) Destroy(ctx context.Context, target provision.Target) (provision.Outcome, error) {
	if f.err != nil {
		return provision.Outcome{}, f.err
	}
	f.destroyed = append(f.destroyed, target)
	return provision.Outcome{StatusCode: 200, Body: "device deleted"}, nil
}

func newTestHandler() (*handler.Handler, *fakeProvisioner) {
	provisioner := &fakeProvisioner{}
	h := handler.MustNewHandler(&handler.Builder{
		Directory:   &fakeDirectory{},
		Provisioner: provisioner,
	})
	return h, provisioner
}

// v2Event builds an API Gateway payload format 2.0 event.
func v2Event(method, body string) json.RawMessage {
	event := map[string]any{
		"body": body,
		"requestContext": map[string]any{
			"http": map[string]any{"method": method},
		},
	}
	raw, _ := json.Marshal(event)
	return raw
}

// v1Event builds an API Gateway payload format 1.0 event.
func v1Event(method, body string) json.RawMessage {
	event := map[string]any{
		"body":           body,
		"requestContext": map[string]any{"httpMethod": method},
	}
	raw, _ := json.Marshal(event)
	return raw
}

func errorCode(t *testing.T, body string) string {
	t.Helper()
	var parsed struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))
	return parsed.Code
}

func TestLambdaCreateV2(t *testing.T) {
	h, provisioner := newTestHandler()

	response, err := h.HandleLambda(context.Background(), v2Event("POST", `{"uuid":"`+testUUID+`"}`))
	require.NoError(t, err)
	require.Equal(t, 201, response.StatusCode)
	require.Equal(t, "device created", response.Body)
	require.Len(t, provisioner.created, 1)
	require.Equal(t, int64(7), provisioner.created[0].DeviceID)
	require.False(t, provisioner.created[0].ServiceScoped())
}

func TestLambdaDeleteV1(t *testing.T) {
	h, provisioner := newTestHandler()

	response, err := h.HandleLambda(context.Background(), v1Event("DELETE", `{"uuid":"`+testUUID+`"}`))
	require.NoError(t, err)
	require.Equal(t, 200, response.StatusCode)
	require.Equal(t, "device deleted", response.Body)
	require.Len(t, provisioner.destroyed, 1)
}

func TestLambdaResolvesService(t *testing.T) {
	h, provisioner := newTestHandler()

	response, err := h.HandleLambda(context.Background(),
		v2Event("POST", `{"uuid":"`+testUUID+`","service":"telemetry"}`))
	require.NoError(t, err)
	require.Equal(t, 201, response.StatusCode)
	require.Equal(t, int64(42), provisioner.created[0].ServiceID)
	require.Equal(t, "telemetry", provisioner.created[0].ServiceName)
}

func TestLambdaBase64Body(t *testing.T) {
	h, provisioner := newTestHandler()

	body := base64.StdEncoding.EncodeToString([]byte(`{"uuid":"` + testUUID + `"}`))
	event := map[string]any{
		"body":            body,
		"isBase64Encoded": true,
		"requestContext":  map[string]any{"httpMethod": "POST"},
	}
	raw, _ := json.Marshal(event)

	response, err := h.HandleLambda(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, 201, response.StatusCode)
	require.Len(t, provisioner.created, 1)
}

func TestLambdaRequestValidation(t *testing.T) {
	h, _ := newTestHandler()

	cases := []struct {
		name string
		raw  json.RawMessage
		code string
	}{
		{"empty event", json.RawMessage(`{}`), provision.CodeNoBody},
		{"no request context", json.RawMessage(`{"body":"{\"uuid\":\"x\"}"}`), provision.CodeNoHTTP},
		{"no method", json.RawMessage(`{"body":"{\"uuid\":\"x\"}","requestContext":{}}`), provision.CodeNoHTTP},
		{"missing uuid", v2Event("POST", `{"service":"telemetry"}`), provision.CodeBadBody},
		{"empty uuid", v2Event("POST", `{"uuid":""}`), provision.CodeBadBody},
		{"body not json", v2Event("POST", `certainly not json`), provision.CodeBadBody},
		{"unsupported method", v2Event("PUT", `{"uuid":"`+testUUID+`"}`), provision.CodeBadMethod},
		{"unknown device", v2Event("POST", `{"uuid":"0000000000000000000000000000dead"}`), provision.CodeDeviceNotFound},
		{"unknown service", v2Event("POST", `{"uuid":"`+testUUID+`","service":"nonsuch"}`), provision.CodeServiceNotFound},
	}

	for _, c := range cases {
		response, err := h.HandleLambda(context.Background(), c.raw)
		require.NoError(t, err, c.name)
		require.Equal(t, 400, response.StatusCode, c.name)
		require.Equal(t, c.code, errorCode(t, response.Body), c.name)
	}
}

func TestLambdaConflictIs400(t *testing.T) {
	h, provisioner := newTestHandler()
	provisioner.err = &provision.Error{
		Kind:    provision.KindConflict,
		Code:    provision.CodeThingExists,
		Message: "thing already exists",
	}

	response, err := h.HandleLambda(context.Background(), v2Event("POST", `{"uuid":"`+testUUID+`"}`))
	require.NoError(t, err)
	require.Equal(t, 400, response.StatusCode)
	require.Equal(t, provision.CodeThingExists, errorCode(t, response.Body))
}

func TestLambdaUpstreamFailureIs500(t *testing.T) {
	h, provisioner := newTestHandler()
	provisioner.err = &provision.Error{
		Kind:    provision.KindUpstream,
		Code:    provision.CodeRegistryFailure,
		Message: "attaching policy",
	}

	response, err := h.HandleLambda(context.Background(), v2Event("POST", `{"uuid":"`+testUUID+`"}`))
	require.NoError(t, err)
	require.Equal(t, 500, response.StatusCode)
	require.Equal(t, provision.CodeRegistryFailure, errorCode(t, response.Body))
	require.Contains(t, response.Body, "attaching policy")
}

func TestServeHTTP(t *testing.T) {
	h, provisioner := newTestHandler()

	request := httptest.NewRequest(http.MethodPost, "/provision",
		strings.NewReader(`{"uuid":"`+testUUID+`"}`))
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, request)

	require.Equal(t, 201, recorder.Code)
	require.Equal(t, "device created", recorder.Body.String())
	require.Len(t, provisioner.created, 1)
}

func TestServeHTTPNoBody(t *testing.T) {
	h, _ := newTestHandler()

	request := httptest.NewRequest(http.MethodDelete, "/provision", nil)
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, request)

	require.Equal(t, 400, recorder.Code)
	require.Equal(t, provision.CodeNoBody, errorCode(t, recorder.Body.String()))
}
