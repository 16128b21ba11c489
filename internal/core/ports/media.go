package ports

import "context"

// MediaUploader pushes a staged local file to the external media host and
// returns a durable URL. The caller owns removal of the staged file.
type MediaUploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}
