package entity

import "time"

// Client is a remote party identified by its network address.
type Client struct {
	ID       uint64    `json:"id" yaml:"id"`
	Address  string    `json:"address" yaml:"address"`
	Label    string    `json:"label" yaml:"label"`
	LastSeen time.Time `json:"last_seen" yaml:"last_seen"`
	Active   bool      `json:"active" yaml:"active"`
}

type DownloadRecord struct {
	ID          uint64    `json:"id"`
	ClientID    uint64    `json:"client_id"`
	DirectoryID uint64    `json:"directory_id"`
	Time        time.Time `json:"time"`
}

type UploadRecord struct {
	ID          uint64    `json:"id"`
	ClientID    uint64    `json:"client_id"`
	DirectoryID uint64    `json:"directory_id"`
	Time        time.Time `json:"time"`
	FileCount   int       `json:"file_count"`
}

// ResetResult holds the number of rows removed by a session reset.
type ResetResult struct {
	Clients   int `json:"clients"`
	Downloads int `json:"downloads"`
	Uploads   int `json:"uploads"`
}

// SweepResult counts clients by the state a liveness sweep left them in.
type SweepResult struct {
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}
