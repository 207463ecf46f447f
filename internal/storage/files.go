package storage

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileStore keeps proof files on local disk, one directory per goal, and
// hands out public URLs for them.
type FileStore struct {
	dir     string
	baseURL string
	maxSize int64
}

// DefaultMaxFileSize caps a proof file when no limit is configured.
const DefaultMaxFileSize int64 = 10 << 20

func NewFileStore(dir, publicBaseURL string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &FileStore{
		dir:     dir,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		maxSize: DefaultMaxFileSize,
	}, nil
}

// Dir is the root served under /files/.
func (f *FileStore) Dir() string { return f.dir }

// Save writes body as goalID/name and returns its public reference.
func (f *FileStore) Save(goalID, name string, body io.Reader) (string, error) {
	if !safeSegment(goalID) || !safeSegment(name) {
		return "", fmt.Errorf("unsafe file name %q", name)
	}
	if body == nil {
		return "", fmt.Errorf("proof file %q has no content", name)
	}
	goalDir := filepath.Join(f.dir, goalID)
	if err := os.MkdirAll(goalDir, 0o755); err != nil {
		return "", fmt.Errorf("create goal directory: %w", err)
	}
	target := filepath.Join(goalDir, name)
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create proof file: %w", err)
	}
	n, err := io.Copy(out, io.LimitReader(body, f.maxSize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > f.maxSize {
		err = fmt.Errorf("proof file exceeds %d bytes", f.maxSize)
	}
	if err != nil {
		os.Remove(target)
		return "", fmt.Errorf("write proof file: %w", err)
	}
	return f.ref(goalID, name), nil
}

func (f *FileStore) ref(goalID, name string) string {
	return f.baseURL + "/files/" + url.PathEscape(goalID) + "/" + url.PathEscape(name)
}

// Remove deletes the file behind ref. Unknown refs are ignored.
func (f *FileStore) Remove(ref string) error {
	rel, ok := strings.CutPrefix(ref, f.baseURL+"/files/")
	if !ok {
		return nil
	}
	rel, err := url.PathUnescape(rel)
	if err != nil {
		return nil
	}
	goalID, name := path.Split(rel)
	goalID = strings.TrimSuffix(goalID, "/")
	if !safeSegment(goalID) || !safeSegment(name) {
		return nil
	}
	if err := os.Remove(filepath.Join(f.dir, goalID, name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveGoal drops every file stored for goalID.
func (f *FileStore) RemoveGoal(goalID string) error {
	if !safeSegment(goalID) {
		return nil
	}
	return os.RemoveAll(filepath.Join(f.dir, goalID))
}

func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// StoredName builds the on-disk name for a proof file, keeping only a short
// alphanumeric extension from the original name.
func StoredName(proofID, original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if len(ext) > 6 || strings.IndexFunc(ext[min(1, len(ext)):], func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) >= 0 {
		ext = ""
	}
	return proofID + ext
}
