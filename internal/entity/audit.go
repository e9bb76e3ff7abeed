package entity

import "time"

// AuditEntry is one transfer joined with its client and directory.
type AuditEntry struct {
	Kind      string    `yaml:"kind" json:"kind"`
	Time      time.Time `yaml:"time" json:"time"`
	Address   string    `yaml:"address" json:"address"`
	Label     string    `yaml:"label" json:"label"`
	Path      string    `yaml:"path" json:"path"`
	FileCount int       `yaml:"file_count,omitempty" json:"file_count,omitempty"`
}

type AuditDump struct {
	CreatedAt time.Time    `yaml:"created_at"`
	Clients   []*Client    `yaml:"clients"`
	Entries   []AuditEntry `yaml:"entries"`
}

const (
	AuditKindDownload = "download"
	AuditKindUpload   = "upload"
)
