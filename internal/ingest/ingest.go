package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lorekeeper/internal/parser"
)

// Chapter is story text ready for extraction.
type Chapter struct {
	Story string
	Title string
	Order int
	Path  string
	Hash  string
	Text  string
}

type Result struct {
	Chapters     []Chapter
	FilesSkipped int
	Errors       []error
}

type Options struct {
	// Story is used for files without a story in their frontmatter. When
	// set, files belonging to other stories are skipped.
	Story   string
	Exclude []string
}

var sourceExtensions = []string{".md", ".markdown", ".txt"}

// Load reads chapter files from paths (files or directories). Unreadable
// or invalid files are collected in Result.Errors and do not stop the walk.
func Load(ctx context.Context, paths []string, options Options) (*Result, error) {
	files, err := walkSourceFiles(paths, options.Exclude)
	if err != nil {
		return nil, fmt.Errorf("walking chapter files: %w", err)
	}

	result := &Result{}
	seen := make(map[string]bool)
	wanted := strings.TrimSpace(options.Story)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hash, err := computeHash(path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("hashing %s: %w", path, err))
			continue
		}
		if seen[hash] {
			result.FilesSkipped++
			continue
		}

		doc, err := parser.ParseFile(path)
		if err != nil {
			if errors.Is(err, parser.ErrEmptyBody) {
				result.FilesSkipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Errorf("parsing %s: %w", path, err))
			continue
		}

		// Story IDs are exact, as the stores key them.
		story := strings.TrimSpace(doc.Story)
		if story == "" {
			story = wanted
		}
		if story == "" {
			result.Errors = append(result.Errors, fmt.Errorf("parsing %s: no story in frontmatter and none given", path))
			continue
		}
		if wanted != "" && story != wanted {
			result.FilesSkipped++
			continue
		}

		seen[hash] = true
		result.Chapters = append(result.Chapters, Chapter{
			Story: story,
			Title: doc.Title,
			Order: doc.Order,
			Path:  path,
			Hash:  hash,
			Text:  doc.Body,
		})
	}

	sort.SliceStable(result.Chapters, func(i, j int) bool {
		a, b := result.Chapters[i], result.Chapters[j]
		if a.Story != b.Story {
			return a.Story < b.Story
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.Path < b.Path
	})
	return result, nil
}

// Stories lists the distinct stories in load order.
func (r *Result) Stories() []string {
	var stories []string
	seen := make(map[string]bool)
	for _, chapter := range r.Chapters {
		if seen[chapter.Story] {
			continue
		}
		seen[chapter.Story] = true
		stories = append(stories, chapter.Story)
	}
	return stories
}

// Text joins the chapters of one story in reading order.
func (r *Result) Text(story string) string {
	story = strings.TrimSpace(story)
	var parts []string
	for _, chapter := range r.Chapters {
		if chapter.Story == story {
			parts = append(parts, chapter.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func walkSourceFiles(roots []string, excludes []string) ([]string, error) {
	excluded := make([]string, 0, len(excludes))
	for _, path := range excludes {
		if path == "" {
			continue
		}
		excluded = append(excluded, filepath.Clean(path))
	}

	var files []string
	for _, root := range roots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && isExcluded(path, excluded) {
				return filepath.SkipDir
			}
			if d.IsDir() {
				return nil
			}
			if !isSourceFile(d.Name()) {
				return nil
			}
			if isExcluded(path, excluded) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func isSourceFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range sourceExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func isExcluded(path string, excludes []string) bool {
	clean := filepath.Clean(path)
	for _, exclude := range excludes {
		if exclude == clean || strings.HasPrefix(clean, exclude+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

func computeHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
