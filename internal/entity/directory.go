package entity

import "fmt"

const (
	ModeNotShared ShareMode = iota
	ModeReadOnly
	ModeUploadOnly
)

// ShareMode controls what clients may do with a directory.
type ShareMode int

func (m ShareMode) Valid() bool {
	return m >= ModeNotShared && m <= ModeUploadOnly
}

func (m ShareMode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("ShareMode(%d)", int(m))
	}

	return [...]string{"Not shared", "Read only", "Upload only"}[m]
}

// Directory is an immediate child of the shared root known to the registry.
type Directory struct {
	ID   uint64    `json:"id"`
	Path string    `json:"path"` // Relative to the shared root
	Mode ShareMode `json:"mode"`
}

// Description is the rendered description.md of a shared directory.
type Description struct {
	Path  string `json:"path"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}
