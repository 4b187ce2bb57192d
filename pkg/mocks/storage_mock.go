package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/openimaging/conductor/pkg/storage"
)

// MockObjectStore is a mock implementation of storage.ObjectStore.
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) ListObjects(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	args := m.Called(ctx, bucket, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]storage.ObjectInfo), args.Error(1)
}

func (m *MockObjectStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockObjectStore) RemoveObject(ctx context.Context, bucket, key string) error {
	args := m.Called(ctx, bucket, key)

	return args.Error(0)
}

func (m *MockObjectStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
