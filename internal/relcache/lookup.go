package relcache

// State is the cached knowledge about a relationship.
type State uint8

const (
	// Unknown means nothing fresh is cached; the caller must ask upstream.
	Unknown State = iota
	// Absent means upstream was asked and reported no relationship.
	Absent
	// Present means a relationship value is cached.
	Present
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Present:
		return "present"
	default:
		return "unknown"
	}
}

// Lookup is the result of a relationship read. Value is meaningful only when
// State is Present.
type Lookup[R any] struct {
	State State
	Value R
}

// Known reports whether the lookup can be answered without going upstream.
func (l Lookup[R]) Known() bool { return l.State != Unknown }

// Get returns the value and whether it is present.
func (l Lookup[R]) Get() (R, bool) { return l.Value, l.State == Present }

// Op names an invalidation operation.
type Op string

const (
	OpEntity       Op = "entity"       // count plus all relationships of an entity
	OpRelationship Op = "relationship" // one relationship plus the entity's count
	OpClear        Op = "clear"        // everything
)

// Invalidation describes a cache invalidation so it can be replayed
// elsewhere with Apply.
type Invalidation struct {
	Op        Op     `json:"op"`
	SubjectID string `json:"subjectId,omitempty"`
	EntityID  string `json:"entityId,omitempty"`
}

// Stats holds cumulative cache counters.
type Stats struct {
	Hits          uint64 `json:"hits"`       // fresh count or present relationship
	AbsentHits    uint64 `json:"absentHits"` // fresh known-absent relationship
	Misses        uint64 `json:"misses"`     // nothing fresh cached
	Expirations   uint64 `json:"expirations"`
	Invalidations uint64 `json:"invalidations"`
}
