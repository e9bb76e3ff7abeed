package entity

import "io"

// UploadFile is one file of an upload batch. Name is relative to the batch root.
type UploadFile struct {
	Name string
	Open func() (io.ReadCloser, error)
}
