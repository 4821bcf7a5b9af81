package certs

import (
	"context"
	"fmt"
	"os"
)

// Open selects a certificate Store implementation using environment
// variables.
//
//	EMTRADE_CERT_DRIVER: fs|s3|memory (default fs)
//	EMTRADE_CERT_FS_ROOT: directory root when driver=fs (default ./certdata)
//	(S3 specific variables documented on OpenS3FromEnv)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("EMTRADE_CERT_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("EMTRADE_CERT_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown certificate driver %s", driver)
	}
}
