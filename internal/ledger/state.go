package ledger

// KV is one key-value pair yielded by a prefix scan.
type KV struct {
	Key   string
	Value []byte
}

// Iterator walks the results of a prefix scan. It is finite and not
// restartable.
type Iterator interface {
	// Next returns the next pair. ok is false once the scan is exhausted.
	Next() (kv KV, ok bool)
}

// State is the read/write surface a single business action sees. All reads
// observe one consistent snapshot plus the action's own buffered writes, and
// all writes are applied as a single atomic batch at commit time, or not at
// all.
type State interface {
	// Get returns the value stored under key, or nil when the key is absent.
	Get(key string) ([]byte, error)
	// Put buffers a write of value under key.
	Put(key string, value []byte) error
	// Scan iterates all pairs whose key carries the given type prefix.
	Scan(prefix string) (Iterator, error)
}

// sliceIterator walks a pre-collected, ordered result set.
type sliceIterator struct {
	kvs []KV
	pos int
}

func (it *sliceIterator) Next() (KV, bool) {
	if it.pos >= len(it.kvs) {
		return KV{}, false
	}
	kv := it.kvs[it.pos]
	it.pos++
	return kv, true
}
