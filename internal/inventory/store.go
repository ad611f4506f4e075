package inventory

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ideamans/go-http-playback-proxy/internal/domain"
)

// indexFileName is the well-known name of the index document at the
// inventory root, per spec.md §4.1.
const indexFileName = "index.json"

// contentsDirName is the well-known name of the content tree.
const contentsDirName = "contents"

// CAFileName is the well-known name of the self-signed root CA PEM, which
// spec.md §6 requires to be published under the inventory directory.
const CAFileName = "ca.pem"

// MalformedInventoryError wraps failures from Load, tagged so callers can
// detect the spec's MalformedInventory error kind with errors.Is semantics
// via errors.As on *MalformedInventoryError.
type MalformedInventoryError struct {
	Dir string
	Err error
}

func (e *MalformedInventoryError) Error() string {
	return fmt.Sprintf("inventory: malformed inventory at %s: %v", e.Dir, e.Err)
}

func (e *MalformedInventoryError) Unwrap() error { return e.Err }

// Store is the in-memory, append-only inventory guarded by one lock,
// matching spec.md §5's "mutators append complete Resource records only".
type Store struct {
	mu  sync.Mutex
	inv domain.Inventory
}

// NewStore returns a Store seeded with an empty inventory.
func NewStore() *Store {
	return &Store{inv: domain.NewInventory()}
}

// SetEntryURL records the optional entry URL for the session.
func (s *Store) SetEntryURL(entryURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inv.EntryURL = &entryURL
}

// SetDeviceType records the optional device type for the session.
func (s *Store) SetDeviceType(dt domain.DeviceType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inv.DeviceType = &dt
}

// Append adds a completed Resource to the inventory. Safe for concurrent
// use; callers from different connections may call this concurrently.
func (s *Store) Append(r domain.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inv.Resources = append(s.inv.Resources, r)
}

// Len returns the number of resources recorded so far.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inv.Resources)
}

// Snapshot returns a deep-enough copy of the current inventory for
// persisting without holding the lock during I/O, per spec.md §4.9/§5.
func (s *Store) Snapshot() domain.Inventory {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := domain.Inventory{EntryURL: s.inv.EntryURL, DeviceType: s.inv.DeviceType}
	cp.Resources = make([]domain.Resource, len(s.inv.Resources))
	copy(cp.Resources, s.inv.Resources)
	return cp
}

// Save persists inv to dir: content files first (each fsynced), then
// index.json last, so a partial write is detectable as content without an
// index (spec.md §4.1 "Save").
func Save(dir string, inv domain.Inventory) error {
	contentsDir := filepath.Join(dir, contentsDirName)
	if err := os.MkdirAll(contentsDir, 0o755); err != nil {
		return fmt.Errorf("inventory: create contents dir: %w", err)
	}

	for i := range inv.Resources {
		if err := writeResourceContentFile(dir, &inv.Resources[i]); err != nil {
			return fmt.Errorf("inventory: write content file for %s %s: %w", inv.Resources[i].Method, inv.Resources[i].URL, err)
		}
	}

	payload, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return fmt.Errorf("inventory: marshal index: %w", err)
	}
	return atomicWriteFile(filepath.Join(dir, indexFileName), payload)
}

// writeResourceContentFile writes r's ContentFilePath (if set) to disk
// using temp-file-then-rename, matching spec.md §5's "writes use
// temp-file-then-rename within each resource path to avoid torn reads".
func writeResourceContentFile(dir string, r *domain.Resource) error {
	if r.ContentFilePath == nil {
		return nil
	}
	full := filepath.Join(dir, contentsDirName, *r.ContentFilePath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return atomicWriteFile(full, r.PendingBytes)
}

func atomicWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads index.json from dir, validating that every referenced
// contentFilePath exists and is readable, per spec.md §4.1 "Load".
func Load(dir string) (domain.Inventory, error) {
	raw, err := os.ReadFile(filepath.Join(dir, indexFileName))
	if err != nil {
		return domain.Inventory{}, &MalformedInventoryError{Dir: dir, Err: err}
	}
	var inv domain.Inventory
	if err := json.Unmarshal(raw, &inv); err != nil {
		return domain.Inventory{}, &MalformedInventoryError{Dir: dir, Err: err}
	}
	for i := range inv.Resources {
		r := &inv.Resources[i]
		if r.ContentFilePath == nil {
			continue
		}
		full := filepath.Join(dir, contentsDirName, *r.ContentFilePath)
		f, err := os.Open(full)
		if err != nil {
			return domain.Inventory{}, &MalformedInventoryError{Dir: dir, Err: fmt.Errorf("missing content file %q: %w", *r.ContentFilePath, err)}
		}
		_ = f.Close()
	}
	return inv, nil
}

// LoadResourceBody reads the body bytes for r, resolving content_file_path,
// content_base64, or content_utf8 in that precedence, matching spec.md
// §4.6 step 1.
func LoadResourceBody(dir string, r domain.Resource) ([]byte, error) {
	if r.ContentFilePath != nil {
		full := filepath.Join(dir, contentsDirName, *r.ContentFilePath)
		b, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("inventory: read content file %q: %w", *r.ContentFilePath, err)
		}
		return b, nil
	}
	if r.ContentBase64 != nil {
		b, err := base64.StdEncoding.DecodeString(*r.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("inventory: decode base64 content: %w", err)
		}
		return b, nil
	}
	if r.ContentUTF8 != nil {
		return []byte(*r.ContentUTF8), nil
	}
	return nil, nil
}
