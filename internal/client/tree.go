package client

import (
	"os"
	"path/filepath"
)

type Node interface {
	Path() string
	Name() string
}

type File struct {
	path string
	name string
}

type Dir struct {
	path     string
	name     string
	children []Node
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Name() string {
	return f.name
}

func (d *Dir) Path() string {
	return d.path
}

func (d *Dir) Name() string {
	return d.name
}

func (d *Dir) Children() []Node {
	return d.children
}

// BuildTree reads dirPath recursively. Symlinks and other special files are
// skipped so that an archive never follows a link out of the tree.
func BuildTree(dirPath string) (*Dir, error) {
	dir := &Dir{
		path:     dirPath,
		name:     filepath.Base(dirPath),
		children: []Node{},
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		childPath := filepath.Join(dirPath, entry.Name())

		switch {
		case entry.IsDir():
			childDir, err := BuildTree(childPath)
			if err != nil {
				return nil, err
			}
			dir.children = append(dir.children, childDir)
		case entry.Type().IsRegular():
			dir.children = append(dir.children, &File{path: childPath, name: entry.Name()})
		}
	}

	return dir, nil
}

// Files returns every file below d in depth-first order.
func (d *Dir) Files() []*File {
	var out []*File
	for _, child := range d.children {
		switch n := child.(type) {
		case *File:
			out = append(out, n)
		case *Dir:
			out = append(out, n.Files()...)
		}
	}
	return out
}
