package cmd

import (
	"fmt"
	"log/slog"

	"github.com/openimaging/conductor/pkg/storage"
	"github.com/openimaging/conductor/pkg/storage/minio"
)

func NewObjectStore(logger *slog.Logger, endpoint, accessKey, secretKey string, useSSL bool) storage.ObjectStore {
	store, err := minio.NewObjectStore(minio.Config{
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    useSSL,
	}, logger)
	if err != nil {
		panic(fmt.Errorf("failed to create object store: %w", err))
	}

	return store
}
