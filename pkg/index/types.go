// ABOUTME: Data model for the shared master index
// ABOUTME: Collection metadata, virtual lock records, and the persisted index document

package index

import "time"

// SchemaVersion is the current master index document schema version
const SchemaVersion = 1

// historyLimit bounds the per-collection modification history
const historyLimit = 10

// LockStatus is a virtual per-collection lock lease. A lease is expired once
// now - LockedAt exceeds LockTimeout, at which point anyone may reclaim it.
type LockStatus struct {
	IsLocked    bool      `json:"isLocked"`
	LockedBy    string    `json:"lockedBy"`
	LockedAt    time.Time `json:"lockedAt"`
	LockTimeout int64     `json:"lockTimeout"` // lease duration in milliseconds
}

// ExpiredAt reports whether the lease has expired as of now
func (ls *LockStatus) ExpiredAt(now time.Time) bool {
	return now.Sub(ls.LockedAt) > time.Duration(ls.LockTimeout)*time.Millisecond
}

// CollectionMetadata describes one collection as recorded in the master index
type CollectionMetadata struct {
	Name              string      `json:"name"`
	FileID            string      `json:"fileId"`
	Created           time.Time   `json:"created"`
	LastUpdated       time.Time   `json:"lastUpdated"`
	DocumentCount     int         `json:"documentCount"`
	ModificationToken string      `json:"modificationToken"`
	LockStatus        *LockStatus `json:"lockStatus"`
}

// Clone returns a deep copy safe for callers to mutate
func (cm *CollectionMetadata) Clone() *CollectionMetadata {
	out := *cm
	if cm.LockStatus != nil {
		ls := *cm.LockStatus
		out.LockStatus = &ls
	}
	return &out
}

// MetadataChanges is a partial update to a collection's metadata.
// Nil fields are left untouched. Lock state is managed only through the
// lock methods, never through metadata updates.
type MetadataChanges struct {
	FileID            *string
	DocumentCount     *int
	ModificationToken *string
}

// ConflictStrategy selects how ResolveConflict reconciles divergent state
type ConflictStrategy string

// LastWriteWins discards the stale view and commits the caller's data
const LastWriteWins ConflictStrategy = "LAST_WRITE_WINS"

// IndexDocument is the single document persisted in the shared key-value
// store. It is always read and written whole, never field by field.
type IndexDocument struct {
	Version             int                             `json:"version"`
	LastUpdated         time.Time                       `json:"lastUpdated"`
	Collections         map[string]*CollectionMetadata  `json:"collections"`
	Locks               map[string]*LockStatus          `json:"locks"`
	ModificationHistory map[string][]CollectionMetadata `json:"modificationHistory"`
}

// NewIndexDocument creates an empty index document at the current schema version
func NewIndexDocument() *IndexDocument {
	return &IndexDocument{
		Version:             SchemaVersion,
		Collections:         make(map[string]*CollectionMetadata),
		Locks:               make(map[string]*LockStatus),
		ModificationHistory: make(map[string][]CollectionMetadata),
	}
}

// normalize repairs nil maps after JSON decoding
func (doc *IndexDocument) normalize() {
	if doc.Collections == nil {
		doc.Collections = make(map[string]*CollectionMetadata)
	}
	if doc.Locks == nil {
		doc.Locks = make(map[string]*LockStatus)
	}
	if doc.ModificationHistory == nil {
		doc.ModificationHistory = make(map[string][]CollectionMetadata)
	}
}
