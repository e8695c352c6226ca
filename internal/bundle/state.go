package bundle

import (
	"sync/atomic"
	"time"
)

// State tracks the currently installed release. Reads are lock-free so
// per-request header stamping stays cheap.
type State struct {
	active atomic.Pointer[Release]
}

func NewState() *State { return &State{} }

// Set sets the active release safely
func (s *State) Set(r Release) {
	// create a copy to avoid external mutation
	cp := new(Release)
	*cp = r
	// Set InstalledAt if not already set
	if cp.InstalledAt.IsZero() {
		cp.InstalledAt = time.Now().UTC()
	}
	s.active.Store(cp)
}

// Get retrieves the active release value
func (s *State) Get() (*Release, bool) {
	r := s.active.Load()
	return r, r != nil
}

// AssetVersion returns the current asset version for headers
// Implements httpmw.AssetInfo interface
func (s *State) AssetVersion() string {
	r := s.active.Load()
	if r == nil {
		return ""
	}
	// Prefer manifest version if available
	if r.Manifest != nil && r.Manifest.Version != "" {
		return r.Manifest.Version
	}
	return r.Version
}

// AssetHash returns the current asset bundle hash for headers
// Implements httpmw.AssetInfo interface
func (s *State) AssetHash() string {
	r := s.active.Load()
	if r == nil {
		return ""
	}
	return r.Hash
}

// Manifest returns the current release manifest, if available
func (s *State) Manifest() *Manifest {
	r := s.active.Load()
	if r == nil {
		return nil
	}
	return r.Manifest
}

// Source returns the source of the current release, or SourceUnknown if not available
func (s *State) Source() Source {
	r := s.active.Load()
	if r == nil {
		return SourceUnknown
	}
	return r.Source
}

// InstalledAt returns the time when the current release was installed, or zero if not available
func (s *State) InstalledAt() time.Time {
	r := s.active.Load()
	if r == nil {
		return time.Time{}
	}
	return r.InstalledAt
}
