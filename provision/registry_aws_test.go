package provision

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/iot/types"
)

func TestMapRegistryError(t *testing.T) {
	if mapRegistryError(nil) != nil {
		t.Error("nil should map to nil")
	}

	err := mapRegistryError(fmt.Errorf("operation error IoT: DescribeThing: %w",
		&types.ResourceNotFoundException{}))
	if !IsNotFound(err) {
		t.Errorf("ResourceNotFoundException should map to not-found, got %v", err)
	}

	err = mapRegistryError(errors.New("connection reset"))
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindUpstream || perr.Code != CodeRegistryFailure {
		t.Errorf("generic failure should map to upstream, got %v", err)
	}
}
