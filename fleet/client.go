package fleet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"

	"github.com/fleetware/iot-provisioner/provision"
)

// Client provides access to the fleet cloud's REST API.
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the fleet API at apiURL, authenticating with
// apiKey. An expired JWT session token is rejected immediately.
func NewClient(apiURL, apiKey string) (*Client, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("fleet API URL must not be empty")
	}
	if apiKey == "" {
		return nil, &provision.Error{
			Kind:    provision.KindRequest,
			Code:    provision.CodeInvalidCredentials,
			Message: "fleet API key must not be empty",
		}
	}
	if err := checkSessionToken(apiKey); err != nil {
		return nil, err
	}
	return &Client{
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}, nil
}

// WithHTTPClient returns a new client that uses the given HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	copied := *c
	copied.httpClient = httpClient
	return &copied
}

// checkSessionToken rejects expired JWT session tokens up front so that a stale
// deployment fails with a clear credentials error instead of an opaque 401 from
// the first API call. Opaque provisioning keys are not JWTs and pass through;
// the API validates those itself.
func checkSessionToken(apiKey string) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(apiKey, claims); err != nil {
		return nil
	}
	if !claims.VerifyExpiresAt(time.Now().Unix(), false) {
		return &provision.Error{
			Kind:    provision.KindRequest,
			Code:    provision.CodeInvalidCredentials,
			Message: "fleet session token is expired",
		}
	}
	return nil
}

// Device is a device record from the fleet's device directory.
type Device struct {
	ID            int64
	UUID          string
	ApplicationID int64
}

// Service is one service of a fleet application.
type Service struct {
	ID   int64
	Name string
}

// GetDevice resolves a device uuid to its directory record.
func (c *Client) GetDevice(ctx context.Context, uuid string) (Device, error) {
	var result struct {
		D []struct {
			ID                   int64  `json:"id"`
			UUID                 string `json:"uuid"`
			BelongsToApplication struct {
				ID int64 `json:"__id"`
			} `json:"belongs_to__application"`
		} `json:"d"`
	}
	filter := fmt.Sprintf("uuid eq '%s'", uuid)
	if err := c.do(ctx, http.MethodGet, "device", filter, nil, &result); err != nil {
		return Device{}, err
	}
	if len(result.D) == 0 {
		return Device{}, &provision.Error{
			Kind:    provision.KindRequest,
			Code:    provision.CodeDeviceNotFound,
			Message: "no device with uuid " + uuid,
		}
	}
	device := result.D[0]
	return Device{
		ID:            device.ID,
		UUID:          device.UUID,
		ApplicationID: device.BelongsToApplication.ID,
	}, nil
}

// GetServiceByName resolves a service name within an application.
func (c *Client) GetServiceByName(ctx context.Context, applicationID int64, name string) (Service, error) {
	var result struct {
		D []struct {
			ID          int64  `json:"id"`
			ServiceName string `json:"service_name"`
		} `json:"d"`
	}
	filter := fmt.Sprintf("application eq %d", applicationID)
	if err := c.do(ctx, http.MethodGet, "service", filter, nil, &result); err != nil {
		return Service{}, err
	}
	for _, service := range result.D {
		if service.ServiceName == name {
			return Service{ID: service.ID, Name: service.ServiceName}, nil
		}
	}
	return Service{}, &provision.Error{
		Kind:    provision.KindRequest,
		Code:    provision.CodeServiceNotFound,
		Message: fmt.Sprintf("application %d has no service %q", applicationID, name),
	}
}

// do performs a single API call. Authentication failures and missing resources
// are mapped to the workflow error taxonomy; any other non-2xx response is an
// upstream failure carrying the response body for diagnosis.
func (c *Client) do(ctx context.Context, method, resource, filter string, body, out any) error {
	requestURL := c.apiURL + "/v6/" + resource
	if filter != "" {
		requestURL += "?%24filter=" + url.QueryEscape(filter)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &provision.Error{Kind: provision.KindUpstream, Code: provision.CodeFleetFailure, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return &provision.Error{Kind: provision.KindUpstream, Code: provision.CodeFleetFailure, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &provision.Error{Kind: provision.KindUpstream, Code: provision.CodeFleetFailure, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &provision.Error{
			Kind:    provision.KindRequest,
			Code:    provision.CodeInvalidCredentials,
			Message: "fleet API rejected the session token",
		}
	case resp.StatusCode == http.StatusNotFound:
		return &provision.Error{
			Kind:    provision.KindNotFound,
			Code:    provision.CodeFleetNotFound,
			Message: method + " " + resource,
		}
	case resp.StatusCode >= 300:
		data, _ := io.ReadAll(resp.Body)
		return &provision.Error{
			Kind:    provision.KindUpstream,
			Code:    provision.CodeFleetFailure,
			Message: fmt.Sprintf("%s %s: status %d: %s", method, resource, resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &provision.Error{Kind: provision.KindUpstream, Code: provision.CodeFleetFailure, Err: err}
	}
	return nil
}
