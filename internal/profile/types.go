// Package profile keeps the reader's profile in sync with the backend.
//
// A Store holds what the screen shows. A Controller is the only writer: it
// applies optimistic edits, fetches server truth, and merges the two. Every
// operation is stamped with a sequence number when issued; a result from an
// operation older than the newest one already applied is dropped, so the
// last operation issued wins regardless of the order responses arrive in.
package profile

// Data is the editable profile
type Data struct {
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
}

// SyncState is where the controller is in its fetch/save cycle
type SyncState int

const (
	StateIdle SyncState = iota
	StateTokenPending
	StateFetching
	StateSaving
	StateError
)

func (s SyncState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTokenPending:
		return "tokenPending"
	case StateFetching:
		return "fetching"
	case StateSaving:
		return "saving"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent view of the store
type Snapshot struct {
	Data  Data
	State SyncState

	// Unsynced is set while Data holds a local edit the server has not
	// confirmed.
	Unsynced bool

	// Restored is set while Data comes from a previous session and has not
	// been refreshed from the server yet.
	Restored bool

	// Confirmed is the last server-confirmed profile, valid when
	// HasConfirmed is set.
	Confirmed    Data
	HasConfirmed bool

	// LastError is the failure that put the store into StateError
	LastError error

	// Seq is the sequence number of the operation that last changed the store
	Seq uint64
}

// Authoritative reports whether Data is exactly what the server last said
func (s Snapshot) Authoritative() bool {
	return s.HasConfirmed && !s.Unsynced && !s.Restored
}
