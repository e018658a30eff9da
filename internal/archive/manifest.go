package archive

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"uttervault/internal/utterance"
)

// ErrDuplicateFolder reports a second record mapping to an existing folder.
var ErrDuplicateFolder = errors.New("duplicate archive folder")

// AudioAsset is downloaded audio ready to be archived.
type AudioAsset struct {
	Data     []byte
	Filename string
}

// Entry is the content of one archive folder. Exactly one of Audio and
// Marker is set once the folder is filled.
type Entry struct {
	Metadata string
	Audio    *AudioAsset
	Marker   string
}

type slot struct {
	position int
	entry    Entry
	filled   bool
}

// Manifest maps folder names to their contents. Folders are reserved up
// front and filled concurrently.
type Manifest struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// NewManifest returns an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{slots: make(map[string]*slot)}
}

// Reserve claims name for the record at position.
func (m *Manifest) Reserve(name string, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateFolder, name)
	}
	m.slots[name] = &slot{position: position}
	return nil
}

// ReserveRecord claims a unique folder for rec at position and returns its
// name. When FolderName is already taken by a different record, more of the
// id is carried until the name is free; ids that still collide once fully
// spelled out get the one-based position appended.
func (m *Manifest) ReserveRecord(rec utterance.Record, position int) (string, error) {
	full := len(rec.SafeID())
	for width := utterance.ShortIDLength; ; width += utterance.ShortIDLength {
		name := folderName(rec, position, width)
		err := m.Reserve(name, position)
		if !errors.Is(err, ErrDuplicateFolder) {
			return name, err
		}
		if width >= full {
			break
		}
	}
	base := folderName(rec, position, 0)
	for n := position + 1; ; n++ {
		name := fmt.Sprintf("%s-%d", base, n)
		if err := m.Reserve(name, position); !errors.Is(err, ErrDuplicateFolder) {
			return name, err
		}
	}
}

// Fill stores the contents of a reserved folder.
func (m *Manifest) Fill(name string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[name]
	if !ok {
		return fmt.Errorf("archive folder %s was not reserved", name)
	}
	if s.filled {
		return fmt.Errorf("%w: %s", ErrDuplicateFolder, name)
	}
	s.entry = entry
	s.filled = true
	return nil
}

// Len returns the number of reserved folders.
func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

// Folder is a named entry in export order.
type Folder struct {
	Name  string
	Entry Entry
}

// Folders returns every filled folder ordered by reservation position.
func (m *Manifest) Folders() []Folder {
	m.mu.Lock()
	defer m.mu.Unlock()

	type ordered struct {
		position int
		folder   Folder
	}
	list := make([]ordered, 0, len(m.slots))
	for name, s := range m.slots {
		if !s.filled {
			continue
		}
		list = append(list, ordered{position: s.position, folder: Folder{Name: name, Entry: s.entry}})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].position < list[j].position })

	out := make([]Folder, len(list))
	for i, o := range list {
		out[i] = o.folder
	}
	return out
}
