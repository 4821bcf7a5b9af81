package ledger

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ValidationCode tags the outcome of commit-time validation of a submitted
// transaction.
type ValidationCode string

const (
	// CodeValid marks a transaction whose reads were still current at commit
	// time and whose writes were applied.
	CodeValid ValidationCode = "VALID"
	// CodeMVCCConflict marks a transaction rejected because a key it read was
	// written by a concurrent transaction that committed first.
	CodeMVCCConflict ValidationCode = "MVCC_READ_CONFLICT"
)

// ConflictError reports a commit rejected by read-set validation.
type ConflictError struct {
	Key string
}

func (e ConflictError) Error() string {
	prefix, segments, err := DecomposeKey(e.Key)
	if err != nil {
		return fmt.Sprintf("conflicting write on key %q", e.Key)
	}
	return fmt.Sprintf("conflicting write on %s %s", prefix, strings.Join(segments, "/"))
}

// ReadWriteSet captures the effects of one simulated business action: every
// key read with the version observed (version 0 records an absent key), and
// every key written with its new value.
type ReadWriteSet struct {
	Reads  map[string]uint64 `json:"reads"`
	Writes map[string][]byte `json:"writes"`
}

// versioned is one committed ledger entry. The version is the commit height
// at which the value was last written.
type versioned struct {
	value   []byte
	version uint64
}

// Store is the committed, versioned key-value ledger. Simulations run against
// immutable snapshots; Commit validates each simulation's read set against
// current versions and applies its write set atomically, which is the only
// concurrency control the business layer relies on.
type Store struct {
	mu      sync.RWMutex
	entries map[string]versioned
	height  uint64
}

// NewStore constructs an empty ledger.
func NewStore() *Store {
	return &Store{entries: make(map[string]versioned)}
}

// Entry is one committed key with its version, used for hydration and
// persistence snapshots.
type Entry struct {
	Key     string
	Version uint64
	Value   []byte
}

// Import seeds committed state during hydration. It replaces any existing
// state and must not be called once the store is serving.
func (s *Store) Import(entries []Entry, height uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]versioned, len(entries))
	for _, e := range entries {
		s.entries[e.Key] = versioned{value: append([]byte(nil), e.Value...), version: e.Version}
	}
	s.height = height
}

// Export returns the committed entries in key order plus the current commit
// height.
func (s *Store) Export() ([]Entry, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for k, v := range s.entries {
		out = append(out, Entry{Key: k, Version: v.version, Value: append([]byte(nil), v.value...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, s.height
}

// Snapshot returns an immutable point-in-time view for simulation.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make(map[string]versioned, len(s.entries))
	for k, v := range s.entries {
		entries[k] = v
	}
	return &Snapshot{entries: entries}
}

// Commit validates rw's reads against current key versions and, if every read
// is still current, applies all writes at a single new commit height. The
// returned height identifies the commit; a ConflictError means nothing was
// applied.
func (s *Store) Commit(rw ReadWriteSet) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, seen := range rw.Reads {
		current := uint64(0)
		if e, ok := s.entries[key]; ok {
			current = e.version
		}
		if current != seen {
			return 0, ConflictError{Key: key}
		}
	}
	s.height++
	for key, value := range rw.Writes {
		s.entries[key] = versioned{value: append([]byte(nil), value...), version: s.height}
	}
	return s.height, nil
}

// Height returns the current commit height.
func (s *Store) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height
}

// Backend is the durable ledger surface the submission pipeline drives:
// snapshot for simulation, validated commit for ordering. Persistence drivers
// wrap Store and extend Commit with durability.
type Backend interface {
	Snapshot() *Snapshot
	Commit(rw ReadWriteSet) (uint64, error)
}

// Snapshot is an immutable view of committed state at one height.
type Snapshot struct {
	entries map[string]versioned
}

// get returns the committed value and version under key; version 0 with a nil
// value means absent.
func (sn *Snapshot) get(key string) ([]byte, uint64) {
	e, ok := sn.entries[key]
	if !ok {
		return nil, 0
	}
	return e.value, e.version
}

// Simulation executes one business action against a snapshot, recording the
// read set and buffering the write set. Reads observe the simulation's own
// writes. A Simulation is not safe for concurrent use.
type Simulation struct {
	snapshot *Snapshot
	rw       ReadWriteSet
}

// NewSimulation starts a simulation over the given snapshot.
func NewSimulation(snapshot *Snapshot) *Simulation {
	return &Simulation{
		snapshot: snapshot,
		rw: ReadWriteSet{
			Reads:  make(map[string]uint64),
			Writes: make(map[string][]byte),
		},
	}
}

// Get returns the value under key, preferring the simulation's own buffered
// write. Snapshot reads are recorded with the observed version, absent keys
// included, so commit validation covers them.
func (sim *Simulation) Get(key string) ([]byte, error) {
	if v, ok := sim.rw.Writes[key]; ok {
		return append([]byte(nil), v...), nil
	}
	value, version := sim.snapshot.get(key)
	if _, seen := sim.rw.Reads[key]; !seen {
		sim.rw.Reads[key] = version
	}
	if value == nil {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

// Put buffers a write of value under key.
func (sim *Simulation) Put(key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("put: empty key")
	}
	sim.rw.Writes[key] = append([]byte(nil), value...)
	return nil
}

// Scan iterates every pair under the given type prefix in key order, merging
// snapshot state with the simulation's buffered writes. Scanned keys are
// recorded in the read set.
func (sim *Simulation) Scan(prefix string) (Iterator, error) {
	if prefix == "" {
		return nil, fmt.Errorf("scan: empty prefix")
	}
	want := ScanPrefix(prefix)
	merged := make(map[string][]byte)
	for key, e := range sim.snapshot.entries {
		if strings.HasPrefix(key, want) {
			merged[key] = e.value
		}
	}
	for key, v := range sim.rw.Writes {
		if strings.HasPrefix(key, want) {
			merged[key] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	kvs := make([]KV, 0, len(keys))
	for _, key := range keys {
		if _, fromWrite := sim.rw.Writes[key]; !fromWrite {
			if _, seen := sim.rw.Reads[key]; !seen {
				_, version := sim.snapshot.get(key)
				sim.rw.Reads[key] = version
			}
		}
		kvs = append(kvs, KV{Key: key, Value: append([]byte(nil), merged[key]...)})
	}
	return &sliceIterator{kvs: kvs}, nil
}

// ReadWriteSet returns the effects recorded so far. The maps are shared with
// the simulation; callers must be done simulating before committing.
func (sim *Simulation) ReadWriteSet() ReadWriteSet {
	return sim.rw
}

var _ State = (*Simulation)(nil)
