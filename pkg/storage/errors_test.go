package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *StorageError
		want string
	}{
		{
			name: "with path",
			err: &StorageError{
				Op:        "Download",
				Backend:   BackendAzureBlob,
				Container: "catalog",
				Path:      "a/b.yaml",
				Err:       ErrNotFound,
			},
			want: "azure-blob Download: catalog/a/b.yaml: object not found",
		},
		{
			name: "container only",
			err: &StorageError{
				Op:        "List",
				Backend:   BackendAzureBlob,
				Container: "catalog",
				Err:       ErrAccessDenied,
			},
			want: "azure-blob List: catalog: access denied",
		},
		{
			name: "bare",
			err: &StorageError{
				Op:      "New",
				Backend: BackendS3,
				Err:     ErrInvalidCredentials,
			},
			want: "s3 New: invalid credentials",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestStorageError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("wrapped: %w", ErrThrottled)
	err := &StorageError{Op: "List", Backend: BackendAzureBlob, Err: cause}

	assert.True(t, errors.Is(err, ErrThrottled))
	assert.ErrorIs(t, err, cause)
}

func TestSentinelHelpers(t *testing.T) {
	wrap := func(sentinel error) error {
		return &StorageError{Op: "Download", Backend: BackendAzureBlob, Err: sentinel}
	}

	tests := []struct {
		name     string
		err      error
		check    func(error) bool
		expected bool
	}{
		{"not modified", wrap(ErrNotModified), IsNotModified, true},
		{"not found", wrap(ErrNotFound), IsNotFound, true},
		{"container not found", wrap(ErrContainerNotFound), IsContainerNotFound, true},
		{"access denied", wrap(ErrAccessDenied), IsAccessDenied, true},
		{"invalid credentials", wrap(ErrInvalidCredentials), IsInvalidCredentials, true},
		{"unavailable", wrap(ErrUnavailable), IsUnavailable, true},
		{"throttled", wrap(ErrThrottled), IsThrottled, true},
		{"mismatch", wrap(ErrNotFound), IsNotModified, false},
		{"plain error", errors.New("boom"), IsNotFound, false},
		{"nil", nil, IsNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.check(tt.err))
		})
	}
}
