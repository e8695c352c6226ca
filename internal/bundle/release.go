package bundle

import "time"

type Source string

const (
	SourceUnknown  Source = "unknown"
	SourceEmbedded Source = "embedded"
	SourceDisk     Source = "disk"
	SourceS3       Source = "s3"
)

// Staged is an extracted, verified bundle awaiting installation. Dir holds
// the extracted tree inside the loader's staging area.
type Staged struct {
	Hash       string
	Dir        string
	Manifest   *Manifest
	FileCount  int
	TotalBytes int64
	VerifiedAt time.Time
}

// Release describes the asset bundle currently being served, whatever its
// origin: the binary's embedded tree, a dev root on disk, or a synced S3
// bundle installed at the active root.
type Release struct {
	Hash        string
	Version     string
	Source      Source
	Manifest    *Manifest
	FileCount   int
	TotalBytes  int64
	VerifiedAt  time.Time
	InstalledAt time.Time
}
