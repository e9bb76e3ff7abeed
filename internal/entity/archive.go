package entity

import "time"

// Archive is a generated zip of a shared directory kept in the private cache area.
type Archive struct {
	SourcePath  string    // Relative to the shared root
	FilePath    string    // Location of the artifact inside the cache area
	GeneratedAt time.Time // Modification time of the artifact
	Size        int64
}
