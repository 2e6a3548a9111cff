package files

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lorekeeper/internal/entity"
	"lorekeeper/internal/store"
)

var _ store.Store = (*Store)(nil)

type layout struct {
	dir    string
	prefix string
}

// Directory names match the layout of existing story databases.
var layouts = map[entity.Kind]layout{
	entity.KindCharacter:       {dir: "characters", prefix: "character"},
	entity.KindWorldElement:    {dir: "world", prefix: "world"},
	entity.KindTimelineEvent:   {dir: "Timeline", prefix: "timeline"},
	entity.KindStoryboardScene: {dir: "Storyboard", prefix: "storyboard"},
}

type Options struct {
	TokenLength int
	Logger      *slog.Logger
}

// Store keeps one JSON file per record under root/<story>/<kind dir>/.
type Store struct {
	root        string
	tokenLength int
	logger      *slog.Logger
}

func New(root string, opts Options) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("files store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: filepath.Clean(root), tokenLength: opts.TokenLength, logger: logger}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

func (s *Store) List(ctx context.Context, storyID string, kind entity.Kind) ([]entity.Entity, error) {
	dir, err := s.kindDir(storyID, kind)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []entity.Entity{}, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	records := make([]entity.Entity, 0, len(entries))
	for _, item := range entries {
		if item.IsDir() || !strings.HasSuffix(item.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, item.Name())
		record, err := readRecord(path, kind)
		if err != nil {
			s.logger.Warn("skipping unreadable record", "path", path, "error", err)
			continue
		}
		if entity.Key(record) == "" {
			s.logger.Warn("skipping record without identity", "path", path)
			continue
		}
		records = append(records, record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return entity.Key(records[i]) < entity.Key(records[j])
	})
	return records, nil
}

func (s *Store) Get(ctx context.Context, storyID string, kind entity.Kind, key string) (entity.Entity, error) {
	normalized := entity.NormalizeKey(key)
	if normalized == "" {
		return nil, store.ErrEmptyKey
	}
	path, found, err := s.locate(storyID, kind, normalized)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return readRecord(path, kind)
}

func (s *Store) Upsert(ctx context.Context, storyID string, e entity.Entity) error {
	if err := store.CheckRecord(storyID, e); err != nil {
		return store.NewWriteError(storyID, e, err)
	}
	key := entity.Key(e)

	path, _, err := s.locate(storyID, e.Kind(), key)
	if err != nil {
		return store.NewWriteError(storyID, e, err)
	}

	data, err := entity.Encode(e)
	if err != nil {
		return store.NewWriteError(storyID, e, err)
	}

	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return nil
	}

	if err := writeAtomic(path, data); err != nil {
		return store.NewWriteError(storyID, e, err)
	}
	s.logger.Debug("record written", "story", storyID, "kind", e.Kind(), "key", key, "path", path)
	return nil
}

func (s *Store) Delete(ctx context.Context, storyID string, kind entity.Kind, key string) (bool, error) {
	normalized := entity.NormalizeKey(key)
	if normalized == "" {
		return false, store.ErrEmptyKey
	}
	path, found, err := s.locate(storyID, kind, normalized)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("removing %s: %w", path, err)
	}
	return true, nil
}

// locate returns the file that holds key, or the path a new record for key
// should be written to. Two keys that sanitize to the same token are kept
// apart by a hash suffix on the later one.
func (s *Store) locate(storyID string, kind entity.Kind, key string) (string, bool, error) {
	dir, err := s.kindDir(storyID, kind)
	if err != nil {
		return "", false, err
	}
	l := layouts[kind]
	token := entity.Token(key, s.tokenLength)
	primary := filepath.Join(dir, fmt.Sprintf("%s_%s.json", l.prefix, token))
	secondary := filepath.Join(dir, fmt.Sprintf("%s_%s_%s.json", l.prefix, token, keyHash(key)))

	for _, candidate := range []string{primary, secondary} {
		record, err := readRecord(candidate, kind)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", false, err
		}
		if entity.Key(record) == key {
			return candidate, true, nil
		}
	}

	if _, err := os.Stat(primary); errors.Is(err, fs.ErrNotExist) {
		return primary, false, nil
	}
	return secondary, false, nil
}

func (s *Store) kindDir(storyID string, kind entity.Kind) (string, error) {
	story := strings.TrimSpace(storyID)
	if story == "" {
		return "", store.ErrEmptyStory
	}
	if story == "." || story == ".." || strings.ContainsAny(story, `/\`) {
		return "", fmt.Errorf("invalid story id %q", storyID)
	}
	l, ok := layouts[kind]
	if !ok {
		return "", fmt.Errorf("unknown entity kind: %q", kind)
	}
	return filepath.Join(s.root, story, l.dir), nil
}

func readRecord(path string, kind entity.Kind) (entity.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return entity.Decode(kind, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".record-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func keyHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}

func (s *Store) Search(ctx context.Context, storyID, query string, kind entity.Kind) ([]store.SearchResult, error) {
	return store.SearchByListing(ctx, s, storyID, query, kind)
}
