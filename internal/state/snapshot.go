package state

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"metas/internal/core"
)

// SnapshotVersion tags the snapshot layout. Bump it whenever the layout
// changes; older snapshots are then discarded.
const SnapshotVersion = 2

var (
	ErrSnapshotVersion = errors.New("snapshot version mismatch")
	ErrNoSnapshot      = errors.New("no snapshot")
)

type snapshot struct {
	Version      int                     `json:"version"`
	SavedAt      time.Time               `json:"saved_at"`
	User         *core.User              `json:"user,omitempty"`
	Goals        []core.Goal             `json:"goals"`
	Invitations  []core.Invitation       `json:"invitations"`
	Proofs       map[string][]core.Proof `json:"proofs"`
	Available    map[string][]int        `json:"available"`
	Participants map[string][]string     `json:"participants"`
}

// Save writes the state as a versioned JSON snapshot.
func (s *AppState) Save(w io.Writer) error {
	s.mu.RLock()
	snap := snapshot{
		Version:      SnapshotVersion,
		SavedAt:      time.Now().UTC(),
		User:         s.user,
		Goals:        s.goals,
		Invitations:  s.invitations,
		Proofs:       s.proofs,
		Available:    s.available,
		Participants: s.participants,
	}
	err := json.NewEncoder(w).Encode(snap)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// Load replaces the state with a snapshot. On a version mismatch or a
// malformed snapshot the state is left untouched and the caller is expected
// to refetch.
func (s *AppState) Load(r io.Reader) error {
	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrSnapshotVersion, snap.Version, SnapshotVersion)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.user = snap.User
	s.goals = snap.Goals
	s.invitations = snap.Invitations
	if snap.Proofs != nil {
		s.proofs = snap.Proofs
	}
	if snap.Available != nil {
		s.available = snap.Available
	}
	if snap.Participants != nil {
		s.participants = snap.Participants
	}
	return nil
}

// SnapshotStore keeps one snapshot file per user under a directory.
type SnapshotStore struct {
	dir string
}

func NewSnapshotStore(dir string) (*SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &SnapshotStore{dir: dir}, nil
}

func (st *SnapshotStore) path(userID string) string {
	return filepath.Join(st.dir, base64.RawURLEncoding.EncodeToString([]byte(userID))+".json")
}

// Save writes the snapshot through a temp file so readers never see a
// partial one.
func (st *SnapshotStore) Save(userID string, s *AppState) error {
	tmp, err := os.CreateTemp(st.dir, "snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := s.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot file: %w", err)
	}
	if err := os.Rename(tmp.Name(), st.path(userID)); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// Restore loads the user's snapshot into s. A stale snapshot is deleted and
// reported as ErrSnapshotVersion.
func (st *SnapshotStore) Restore(userID string, s *AppState) error {
	f, err := os.Open(st.path(userID))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNoSnapshot
	}
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	err = s.Load(f)
	f.Close()
	if err != nil {
		st.Delete(userID)
		return err
	}
	return nil
}

func (st *SnapshotStore) Delete(userID string) error {
	if err := os.Remove(st.path(userID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
