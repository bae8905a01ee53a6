package compare

import (
	"strings"
	"sync"
	"time"
)

// Fingerprint identifies the server-side narrowing of a fetched row set. Only
// a change of site or tag (or an explicit reload) requires a new fetch; every
// other filter runs against the rows already held.
type Fingerprint struct {
	Site string `json:"site"`
	Tag  string `json:"tag"`
}

func NewFingerprint(site, tag string) Fingerprint {
	site = strings.TrimSpace(site)
	if site == "" {
		site = "all"
	}
	tag = strings.TrimSpace(tag)
	if tag == "all" {
		tag = ""
	}
	return Fingerprint{Site: site, Tag: tag}
}

// AllSites reports the pivoted multi-competitor view.
func (f Fingerprint) AllSites() bool {
	return f.Site == "all"
}

// Session owns one console view's fetched rows and its load sequence. Each
// load takes a number from Begin; only the latest number may store rows or
// commit a result.
type Session struct {
	id string

	mu        sync.Mutex
	rows      []FlatRow
	fp        Fingerprint
	loaded    bool
	issued    uint64
	committed uint64
	lastUsed  time.Time
}

func NewSession(id string) *Session {
	return &Session{id: id, lastUsed: time.Now()}
}

func (s *Session) ID() string { return s.id }

// NeedsRefetch reports whether rows for fp must be fetched.
func (s *Session) NeedsRefetch(fp Fingerprint, reload bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return reload || !s.loaded || s.fp != fp
}

// Begin starts a load cycle and returns its sequence number.
func (s *Session) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// IsLatest reports whether seq is still the newest load issued.
func (s *Session) IsLatest(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seq == s.issued
}

// Rows returns the held rows and their fingerprint. The slice must not be modified.
func (s *Session) Rows() ([]FlatRow, Fingerprint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows, s.fp, s.loaded
}

// Store replaces the held rows when seq is still the latest load. It reports
// whether the rows were kept.
func (s *Session) Store(seq uint64, fp Fingerprint, rows []FlatRow) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.issued {
		return false
	}
	s.rows = rows
	s.fp = fp
	s.loaded = true
	return true
}

// Commit marks seq as the visible result when it is still the latest load.
func (s *Session) Commit(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.issued {
		return false
	}
	s.committed = seq
	return true
}

// Committed returns the sequence number of the last committed load.
func (s *Session) Committed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}
