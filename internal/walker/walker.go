package walker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

const maxSymlinkHops = 40

// FileInfo represents a regular file found under the walk root
type FileInfo struct {
	Path string // Slash-separated, rebased onto the root as given to NewWalker
}

// Walker enumerates regular files below a root on a billy filesystem
type Walker struct {
	fs       billy.Filesystem
	root     string
	walkRoot string // root with symlinks resolved when it names a directory
}

// NewWalker validates that root exists on fs. A root that is a symlink to a
// directory is walked through its target.
func NewWalker(fs billy.Filesystem, root string) (*Walker, error) {
	info, err := fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}

	walkRoot := root
	if info.IsDir() {
		walkRoot, err = resolveSymlinks(fs, root)
		if err != nil {
			return nil, err
		}
	}

	return &Walker{
		fs:       fs,
		root:     root,
		walkRoot: walkRoot,
	}, nil
}

func resolveSymlinks(fs billy.Filesystem, name string) (string, error) {
	current := name
	for i := 0; i < maxSymlinkHops; i++ {
		info, err := fs.Lstat(current)
		if err != nil {
			return "", fmt.Errorf("lstat %s: %w", current, err)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return current, nil
		}

		target, err := fs.Readlink(current)
		if err != nil {
			return "", fmt.Errorf("readlink %s: %w", current, err)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(current), target)
		}
		current = target
	}
	return "", fmt.Errorf("too many levels of symbolic links: %s", name)
}

// Walk returns every regular file under the root, sorted by path. A root
// that is itself a file yields that single file. Directories are never
// returned and symlinks to directories below the root are not followed.
func (w *Walker) Walk() ([]FileInfo, error) {
	var files []FileInfo

	err := util.Walk(w.fs, w.walkRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, err := w.fs.Stat(path)
			if err != nil {
				return fmt.Errorf("resolve symlink %s: %w", path, err)
			}
			if !target.Mode().IsRegular() {
				return nil
			}
			info = target
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(w.walkRoot, path)
		if err != nil {
			return fmt.Errorf("get relative path: %w", err)
		}

		files = append(files, FileInfo{
			Path: filepath.ToSlash(filepath.Join(w.root, relPath)),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, nil
}
