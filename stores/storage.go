package stores

import (
	"context"
	"w9-uploads/config"
	"w9-uploads/core"
	"w9-uploads/stores/aws"
	"w9-uploads/stores/filesystem"
	"w9-uploads/stores/memory"
	"w9-uploads/stores/postgres"
	"w9-uploads/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// GetOptionStore opens the option store selected by storage.type.
func GetOptionStore(ctx context.Context, cfg config.StorageConfig) (core.OptionStore, error) {
	storageField := logrus.Fields{
		"storageType": cfg.Type,
	}

	var (
		store core.OptionStore
		err   error
	)
	switch cfg.Type {
	case "filesystem":
		storageField["basePath"] = cfg.Path
		store, err = filesystem.NewStore(cfg.Path)
	case "sqlite":
		dataSourceName := cfg.DSN
		if dataSourceName == "" {
			dataSourceName = "w9uploads.db"
		}
		storageField["dataSourceName"] = dataSourceName
		store, err = sqlite.NewStore(dataSourceName)
	case "postgres":
		store, err = postgres.NewStore(ctx, cfg.DSN)
	case "s3":
		storageField["bucketName"] = cfg.Bucket
		store, err = aws.NewStore(ctx, cfg.Bucket, cfg.Prefix)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	if err != nil {
		return nil, err
	}
	logrus.WithFields(storageField).Info("Use option storage")
	return store, nil
}
