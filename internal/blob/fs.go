package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// metaSuffix is appended to the data path to form the sidecar path.
const metaSuffix = ".meta"

// FilesystemStore maps keys to relative file paths under a root directory.
// A metadata sidecar (filename + `.meta`) stores content type and user
// metadata. Writes stream to a temp file and rename into place.
type FilesystemStore struct {
	root string
}

// NewFilesystem returns a filesystem-backed store rooted at path, creating
// the directory if needed. An empty root falls back to ./documents.
func NewFilesystem(root string) (*FilesystemStore, error) {
	if root == "" {
		root = "./documents"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FilesystemStore{root: root}, nil
}

// Driver implements Store.
func (s *FilesystemStore) Driver() Driver { return DriverFilesystem }

// sanitizeKey forbids path traversal and absolute paths so keys cannot
// escape the root.
func sanitizeKey(key string) (string, error) {
	switch {
	case strings.TrimSpace(key) == "":
		return "", errors.New("document key is empty")
	case strings.HasPrefix(key, "/"):
		return "", fmt.Errorf("document key %q is absolute", key)
	case strings.Contains(key, ".."):
		return "", fmt.Errorf("document key %q climbs out of the root", key)
	}
	return filepath.ToSlash(filepath.Clean(key)), nil
}

// paths resolves a key to its data and sidecar locations under the root.
func (s *FilesystemStore) paths(key string) (string, string, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	data := filepath.Join(s.root, clean)
	return data, data + metaSuffix, nil
}

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
}

// stageToTemp streams r into a temp file in dir while hashing it, returning
// the temp file name, the hex etag, and the byte count. The caller renames
// or removes the temp file.
func stageToTemp(dir string, r io.Reader) (string, string, int64, error) {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", "", 0, err
	}
	digest := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, digest), r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", "", 0, err
	}
	return tmp.Name(), hex.EncodeToString(digest.Sum(nil)), size, nil
}

// Put streams r to disk, computing size and a sha256 etag, then moves the
// file into place atomically. Fails if the key already exists.
func (s *FilesystemStore) Put(_ context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return Info{}, fmt.Errorf("document %s already exists", key)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return Info{}, err
	}
	tmpName, etag, size, err := stageToTemp(filepath.Dir(dataPath), r)
	if err != nil {
		return Info{}, err
	}
	if err := os.Rename(tmpName, dataPath); err != nil {
		_ = os.Remove(tmpName)
		return Info{}, err
	}
	sc := sidecar{
		ContentType: opts.ContentType,
		Metadata:    cloneMetadata(opts.Metadata),
		ETag:        etag,
		Size:        size,
		CreatedAt:   time.Now().UTC(),
	}
	if err := writeSidecar(metaPath, sc); err != nil {
		return Info{}, err
	}
	return s.infoFromSidecar(key, sc), nil
}

// Get returns document metadata and an open file handle.
func (s *FilesystemStore) Get(_ context.Context, key string) (Info, io.ReadCloser, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return Info{}, nil, err
	}
	file, err := os.Open(dataPath)
	if err != nil {
		return Info{}, nil, err
	}
	sc, err := readSidecar(metaPath)
	if err != nil {
		_ = file.Close()
		return Info{}, nil, err
	}
	return s.infoFromSidecar(key, sc), file, nil
}

// Head returns document metadata from the sidecar.
func (s *FilesystemStore) Head(_ context.Context, key string) (Info, error) {
	_, metaPath, err := s.paths(key)
	if err != nil {
		return Info{}, err
	}
	sc, err := readSidecar(metaPath)
	if err != nil {
		return Info{}, err
	}
	return s.infoFromSidecar(key, sc), nil
}

// Delete removes the document and its sidecar, reporting whether it existed.
func (s *FilesystemStore) Delete(_ context.Context, key string) (bool, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}

// List walks the root collecting sidecars whose derived key matches prefix.
func (s *FilesystemStore) List(_ context.Context, prefix string) ([]Info, error) {
	var infos []Info
	walk := func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, metaSuffix) {
			return err
		}
		rel, relErr := filepath.Rel(s.root, strings.TrimSuffix(path, metaSuffix))
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		sc, scErr := readSidecar(path)
		if scErr != nil {
			return scErr
		}
		infos = append(infos, s.infoFromSidecar(key, sc))
		return nil
	}
	if err := filepath.WalkDir(s.root, walk); err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL returns a pseudo URL for local development. Only GET is
// supported.
func (s *FilesystemStore) PresignURL(_ context.Context, key string, opts SignedURLOptions) (string, error) {
	if opts.Method != "" && strings.ToUpper(opts.Method) != "GET" {
		return "", ErrUnsupported
	}
	return s.localURL(key), nil
}

func (s *FilesystemStore) localURL(key string) string {
	return (&url.URL{Scheme: "http", Host: "local.documents", Path: "/" + key}).String()
}

func (s *FilesystemStore) infoFromSidecar(key string, sc sidecar) Info {
	return Info{
		Key: key, Size: sc.Size, ContentType: sc.ContentType, ETag: sc.ETag,
		Metadata: cloneMetadata(sc.Metadata), LastModified: sc.CreatedAt, URL: s.localURL(key),
	}
}

func writeSidecar(path string, sc sidecar) error {
	b, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func readSidecar(path string) (sidecar, error) {
	f, err := os.Open(path)
	if err != nil {
		return sidecar{}, err
	}
	defer func() { _ = f.Close() }()
	var sc sidecar
	if err := json.NewDecoder(f).Decode(&sc); err != nil {
		return sidecar{}, fmt.Errorf("read sidecar %s: %w", path, err)
	}
	return sc, nil
}
