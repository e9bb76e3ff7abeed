package common

import "fmt"

var (
	ErrNotFound                = fmt.Errorf("not found")
	ErrInvalidMode             = fmt.Errorf("invalid share mode")
	ErrNotADirectory           = fmt.Errorf("not a directory")
	ErrPathEscapesRoot         = fmt.Errorf("path escapes shared root")
	ErrArchiveGenerationFailed = fmt.Errorf("archive generation failed")
	ErrUnknownClient           = fmt.Errorf("unknown client")
	ErrUnknownDirectory        = fmt.Errorf("unknown directory")
	ErrTooManyFiles            = fmt.Errorf("too many files")
	ErrNameCollision           = fmt.Errorf("name collision")
	ErrAlreadyIdentified       = fmt.Errorf("client already identified")
	ErrLabelRequired           = fmt.Errorf("label required")
	ErrInvalidLabel            = fmt.Errorf("invalid label")
	ErrUnauthorized            = fmt.Errorf("unauthorized")
	ErrReconcileInProgress     = fmt.Errorf("reconcile process has already started")
	ErrEmptyUpload             = fmt.Errorf("no files to upload")
)
