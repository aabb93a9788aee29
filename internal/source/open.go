package source

import (
	"context"
	"fmt"

	"agridash/internal/config"
	"agridash/internal/engine"
)

// Open builds the Source selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Source) (engine.Source, error) {
	switch cfg.Driver {
	case "files":
		return Dir(cfg.Dir), nil
	case "sqlite":
		return OpenSQL(DriverSQLite, cfg.DSN)
	case "postgres":
		return OpenSQL(DriverPostgres, cfg.DSN)
	case "s3":
		return NewS3(ctx, S3Config{
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	default:
		return nil, fmt.Errorf("source: unknown driver %q", cfg.Driver)
	}
}
