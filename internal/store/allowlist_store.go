package store

import (
	"errors"
	"fmt"
	"net/netip"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"ciphersock/internal/domain"
)

const allowListFilename = "allowlist.json"

var (
	// ErrInvalidEntry is returned for allow-list entries that are empty or
	// contain whitespace.
	ErrInvalidEntry = errors.New("invalid allow-list entry")
	// ErrEntryNotFound is returned when removing an absent entry.
	ErrEntryNotFound = errors.New("allow-list entry not found")
)

type allowListFile struct {
	Entries []string `json:"entries"`
}

// AllowListFileStore persists the listener's source-address allow-list.
type AllowListFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewAllowListFileStore returns a store rooted at dir.
func NewAllowListFileStore(dir string) *AllowListFileStore {
	return &AllowListFileStore{dir: dir}
}

func (s *AllowListFileStore) path() string { return filepath.Join(s.dir, allowListFilename) }

// AddAllowed records a host name, IP or CIDR prefix. Adding an existing entry
// is a no-op.
func (s *AllowListFileStore) AddAllowed(entry string) error {
	entry, err := normaliseEntry(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var f allowListFile
	if err := readJSON(s.path(), &f); err != nil {
		return err
	}
	if slices.Contains(f.Entries, entry) {
		return nil
	}
	f.Entries = append(f.Entries, entry)
	slices.Sort(f.Entries)
	return writeJSON(s.path(), f, 0o600)
}

// RemoveAllowed deletes entry.
func (s *AllowListFileStore) RemoveAllowed(entry string) error {
	entry, err := normaliseEntry(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var f allowListFile
	if err := readJSON(s.path(), &f); err != nil {
		return err
	}
	i := slices.Index(f.Entries, entry)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entry)
	}
	f.Entries = slices.Delete(f.Entries, i, i+1)
	return writeJSON(s.path(), f, 0o600)
}

// LoadAllowList returns the sorted entries. A missing file is an empty list.
func (s *AllowListFileStore) LoadAllowList() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var f allowListFile
	if err := readJSON(s.path(), &f); err != nil {
		return nil, err
	}
	return f.Entries, nil
}

// normaliseEntry canonicalises IPs and prefixes so equivalent spellings
// compare equal. Host names are lower-cased.
func normaliseEntry(e string) (string, error) {
	e = strings.TrimSpace(e)
	if e == "" || strings.ContainsAny(e, " \t\r\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntry, e)
	}
	if p, err := netip.ParsePrefix(e); err == nil {
		return p.Masked().String(), nil
	}
	if ip, err := netip.ParseAddr(e); err == nil {
		return ip.Unmap().String(), nil
	}
	if strings.Contains(e, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntry, e)
	}
	return strings.ToLower(e), nil
}

var _ domain.AllowListStore = (*AllowListFileStore)(nil)
