package backend

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
)

func TestS3Backend_ObjectKey(t *testing.T) {
	b := &S3Backend{prefix: "drafts/agent-1/"}
	if got := b.objectKey("conv-1"); got != "drafts/agent-1/conv-1.json.zst" {
		t.Errorf("Expected drafts/agent-1/conv-1.json.zst, got %s", got)
	}
}

func TestS3Backend_MapError(t *testing.T) {
	b := &S3Backend{}

	testCases := []struct {
		name     string
		err      error
		expected error
	}{
		{"NoSuchKey", &smithy.GenericAPIError{Code: "NoSuchKey"}, ErrNotFound},
		{"HEAD not found", &smithy.GenericAPIError{Code: "NotFound"}, ErrNotFound},
		{"Wrapped NoSuchKey", fmt.Errorf("operation error: %w", &smithy.GenericAPIError{Code: "NoSuchKey"}), ErrNotFound},
		{"AccessDenied", &smithy.GenericAPIError{Code: "AccessDenied"}, ErrRejected},
		{"SlowDown", &smithy.GenericAPIError{Code: "SlowDown"}, ErrNetwork},
		{"Transport", errors.New("dial tcp: connection refused"), ErrNetwork},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := b.mapError("get", "conv-1", tc.err); !errors.Is(got, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}
