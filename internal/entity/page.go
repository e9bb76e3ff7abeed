package entity

// IndexPage is everything the listing page shows to one caller.
type IndexPage struct {
	Client     *Client // nil until the caller identifies
	Admin      bool
	ReadOnly   []DirEntry
	UploadOnly []DirEntry
	Managed    []*Directory // admin only
	Modes      []ShareMode
}

type DirEntry struct {
	Path        string
	Description *Description
}

// DirCounters are the transfer totals of one directory in the current session.
type DirCounters struct {
	Path          string    `json:"path"`
	Mode          ShareMode `json:"mode"`
	Downloads     int       `json:"downloads"`
	Uploads       int       `json:"uploads"`
	UploadedFiles int       `json:"uploaded_files"`
}
