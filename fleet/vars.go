package fleet

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fleetware/iot-provisioner/provision"
)

const (
	deviceVarResource  = "device_environment_variable"
	serviceVarResource = "device_service_environment_variable"
)

// SetVar writes a variable for the device, or for one service on the device when
// the target is service-scoped. The API upserts on (device[,service],name).
func (c *Client) SetVar(ctx context.Context, target provision.Target, key, value string) error {
	if target.ServiceScoped() {
		body := map[string]any{
			"device":  target.DeviceID,
			"service": target.ServiceID,
			"name":    key,
			"value":   value,
		}
		return c.do(ctx, http.MethodPost, serviceVarResource, "", body, nil)
	}
	body := map[string]any{
		"device": target.DeviceID,
		"name":   key,
		"value":  value,
	}
	return c.do(ctx, http.MethodPost, deviceVarResource, "", body, nil)
}

// RemoveVar removes a variable from the target's scope. Removing a variable that
// does not exist yields a not-found error; callers decide whether to tolerate it.
func (c *Client) RemoveVar(ctx context.Context, target provision.Target, key string) error {
	if target.ServiceScoped() {
		filter := fmt.Sprintf("device eq %d and service eq %d and name eq '%s'",
			target.DeviceID, target.ServiceID, key)
		return c.do(ctx, http.MethodDelete, serviceVarResource, filter, nil, nil)
	}
	filter := fmt.Sprintf("device eq %d and name eq '%s'", target.DeviceID, key)
	return c.do(ctx, http.MethodDelete, deviceVarResource, filter, nil, nil)
}
