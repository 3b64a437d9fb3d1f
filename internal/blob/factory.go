package blob

import (
	"context"
	"fmt"

	"modelkit/internal/infra/blob/fs"
	"modelkit/internal/infra/blob/memory"
	"modelkit/internal/infra/blob/s3"
)

// S3Config configures the S3-compatible driver.
type S3Config = s3.Config

// Settings selects and configures a blob backend.
type Settings struct {
	Driver Driver
	// Root is the directory used by the filesystem driver.
	Root string
	S3   S3Config
}

// Open constructs the backend named by settings.Driver (default fs).
func Open(ctx context.Context, settings Settings) (Store, error) {
	driver := settings.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(settings.Root)
	case DriverS3:
		return s3.New(ctx, settings.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
