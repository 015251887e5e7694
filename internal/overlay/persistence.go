package overlay

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PersistenceStore implements the library's state-put/state-get callback
// pair for the handful of objects it ever persists: identity-public,
// identity-secret, and planet.
type PersistenceStore interface {
	Put(objtype StateObjectType, data []byte)
	Get(objtype StateObjectType) ([]byte, bool)
}

// objectFilenames maps each persistable StateObjectType to its filename;
// types absent from this table are never persisted regardless of backing
// store (moon, peer, network-config).
var objectFilenames = map[StateObjectType]string{
	StateObjectIdentityPublic: "identity.public",
	StateObjectIdentitySecret: "identity.secret",
	StateObjectPlanet:         "planet",
}

// NewPersistenceStore returns a file-backed store rooted at home, or an
// in-memory store when home is empty. The Overlay Host is keyed by a
// home-directory path, or empty for ephemeral state.
func NewPersistenceStore(home string) PersistenceStore {
	if home == "" {
		return newMemoryPersistence()
	}
	return &filePersistence{dir: home}
}

// -------------------------------------------------------------------------
// filePersistence
// -------------------------------------------------------------------------

// filePersistence writes each persistable object to its own file under dir,
// one file per object type.
type filePersistence struct {
	dir string
}

func (s *filePersistence) Put(objtype StateObjectType, data []byte) {
	name, ok := objectFilenames[objtype]
	if !ok {
		return
	}
	path := filepath.Join(s.dir, name)

	if data == nil {
		_ = os.Remove(path)
		return
	}

	// Best effort: a write failure removes any partial file rather than
	// leaving corrupt state behind.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = os.Remove(path)
	}
}

func (s *filePersistence) Get(objtype StateObjectType) ([]byte, bool) {
	name, ok := objectFilenames[objtype]
	if !ok {
		return nil, false
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, false
	}
	return data, true
}

// ensureDir creates dir (and parents) if it does not already exist.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("overlay: create home directory %s: %w", dir, err)
	}
	return nil
}

// -------------------------------------------------------------------------
// memoryPersistence
// -------------------------------------------------------------------------

// memoryPersistence backs an ephemeral Host: state lives only as long as
// the process, in a map owned by this store, so each Host has its own.
type memoryPersistence struct {
	mu      sync.Mutex
	objects map[StateObjectType][]byte
}

func newMemoryPersistence() *memoryPersistence {
	return &memoryPersistence{objects: make(map[StateObjectType][]byte)}
}

func (s *memoryPersistence) Put(objtype StateObjectType, data []byte) {
	if _, ok := objectFilenames[objtype]; !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if data == nil {
		delete(s.objects, objtype)
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[objtype] = cp
}

func (s *memoryPersistence) Get(objtype StateObjectType) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[objtype]
	return data, ok
}
