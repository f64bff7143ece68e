//go:build !gcp

package archive

import (
	"context"
	"errors"
)

func newGCSStore(context.Context, GCSConfig) (Store, error) {
	return nil, errors.New("GCS storage is not enabled in this build (use -tags gcp)")
}
