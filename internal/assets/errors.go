package assets

import "errors"

var (
	ErrNotFound        = errors.New("asset not found")
	ErrNoFiles         = errors.New("no files in upload")
	ErrNoFilesAccepted = errors.New("no files in upload could be accepted")
)
