package drive

import (
	"fmt"
	"iter"
	"sort"
	"strings"
)

// Node is a single entry in a drive's tree: either a *File or a *Folder.
type Node interface {
	// NodeName returns the entry's name within its parent folder.
	// The root folder's name is empty.
	NodeName() string
}

// File is a leaf node pointing at a content-addressed blob.
type File struct {
	Name   string
	SHA256 string
	Size   int64
	Type   string
}

func (f *File) NodeName() string { return f.Name }

// Extension returns the file name's extension without the leading dot,
// or "" if the name has none.
func (f *File) Extension() string {
	if i := strings.LastIndex(f.Name, "."); i >= 0 && i < len(f.Name)-1 {
		return f.Name[i+1:]
	}
	return ""
}

// Folder is a container node. Child names are unique within a folder.
type Folder struct {
	name     string
	children map[string]Node
}

// NewFolder creates an empty folder with the given name.
func NewFolder(name string) *Folder {
	return &Folder{name: name, children: make(map[string]Node)}
}

func (fo *Folder) NodeName() string { return fo.name }

// Child returns the direct child with the given name.
func (fo *Folder) Child(name string) (Node, bool) {
	n, ok := fo.children[name]
	return n, ok
}

// Children returns the folder's direct children sorted by name.
func (fo *Folder) Children() []Node {
	names := make([]string, 0, len(fo.children))
	for name := range fo.children {
		names = append(names, name)
	}
	sort.Strings(names)
	nodes := make([]Node, len(names))
	for i, name := range names {
		nodes[i] = fo.children[name]
	}
	return nodes
}

func (fo *Folder) put(n Node) { fo.children[n.NodeName()] = n }

// Tree is the hierarchical container a drive owns. The zero value is not
// usable; create trees with NewTree.
type Tree struct {
	root *Folder
}

// NewTree creates an empty tree with an unnamed root folder.
func NewTree() *Tree {
	return &Tree{root: NewFolder("")}
}

// Root returns the root folder.
func (t *Tree) Root() *Folder { return t.root }

// splitPath breaks a '/'-delimited path into its segments.
// "", "/" and "//" all resolve to the root (no segments).
func splitPath(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

func joinPath(segments []string) string {
	return "/" + strings.Join(segments, "/")
}

// Resolve walks the tree node-by-node and returns the node at path.
// Paths are case-sensitive.
func (t *Tree) Resolve(path string) (Node, error) {
	var node Node = t.root
	for _, segment := range splitPath(path) {
		folder, ok := node.(*Folder)
		if !ok {
			return nil, fmt.Errorf("resolving %q: %w", path, ErrNotAFolder)
		}
		child, ok := folder.Child(segment)
		if !ok {
			return nil, fmt.Errorf("resolving %q: %w", path, ErrNotFound)
		}
		node = child
	}
	return node, nil
}

// Folder resolves path to a folder. When create is true, missing
// intermediate folders are created on demand.
func (t *Tree) Folder(path string, create bool) (*Folder, error) {
	current := t.root
	for _, segment := range splitPath(path) {
		child, ok := current.Child(segment)
		if !ok {
			if !create {
				return nil, fmt.Errorf("resolving folder %q: %w", path, ErrNotFound)
			}
			next := NewFolder(segment)
			current.put(next)
			current = next
			continue
		}
		folder, ok := child.(*Folder)
		if !ok {
			return nil, fmt.Errorf("resolving folder %q: %w", path, ErrNotAFolder)
		}
		current = folder
	}
	return current, nil
}

// File resolves path to a file.
func (t *Tree) File(path string) (*File, error) {
	node, err := t.Resolve(path)
	if err != nil {
		return nil, err
	}
	file, ok := node.(*File)
	if !ok {
		return nil, fmt.Errorf("resolving file %q: %w", path, ErrNotAFile)
	}
	return file, nil
}

// SetFile creates or overwrites the file at path, creating intermediate
// folders as needed. The file's name is the last path segment.
func (t *Tree) SetFile(path, sha256 string, size int64, mimeType string) (*File, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, fmt.Errorf("setting file at %q: %w", path, ErrNotAFile)
	}
	parent, err := t.Folder(joinPath(segments[:len(segments)-1]), true)
	if err != nil {
		return nil, err
	}
	file := &File{
		Name:   segments[len(segments)-1],
		SHA256: sha256,
		Size:   size,
		Type:   mimeType,
	}
	parent.put(file)
	return file, nil
}

// Remove detaches the node at path. Removing a missing node is an error.
func (t *Tree) Remove(path string) error {
	segments := splitPath(path)
	if len(segments) == 0 {
		return fmt.Errorf("removing %q: cannot remove root", path)
	}
	parent, err := t.Folder(joinPath(segments[:len(segments)-1]), false)
	if err != nil {
		return err
	}
	name := segments[len(segments)-1]
	if _, ok := parent.Child(name); !ok {
		return fmt.Errorf("removing %q: %w", path, ErrNotFound)
	}
	delete(parent.children, name)
	return nil
}

// Move detaches the node at src and re-attaches it at dest, creating
// dest's parent folders as needed. The node is renamed to dest's last
// segment. Moving a node into its own subtree is rejected.
func (t *Tree) Move(src, dest string) error {
	node, err := t.Resolve(src)
	if err != nil {
		return err
	}
	destSegments := splitPath(dest)
	if len(destSegments) == 0 {
		return fmt.Errorf("moving %q: destination is root", src)
	}
	srcSegments := splitPath(src)
	if len(destSegments) > len(srcSegments) {
		inside := true
		for i, segment := range srcSegments {
			if destSegments[i] != segment {
				inside = false
				break
			}
		}
		if inside {
			return fmt.Errorf("moving %q: destination %q is inside the source", src, dest)
		}
	}
	destParent, err := t.Folder(joinPath(destSegments[:len(destSegments)-1]), true)
	if err != nil {
		return err
	}
	if err := t.Remove(src); err != nil {
		return err
	}
	name := destSegments[len(destSegments)-1]
	switch n := node.(type) {
	case *File:
		n.Name = name
	case *Folder:
		n.name = name
	}
	destParent.put(node)
	return nil
}

// Walk returns a depth-first sequence over all descendant nodes, keyed by
// their '/'-prefixed path. Each call yields a fresh traversal; children are
// visited in name order, parents before descendants.
func (t *Tree) Walk() iter.Seq2[string, Node] {
	return func(yield func(string, Node) bool) {
		walkFolder(t.root, "", yield)
	}
}

func walkFolder(fo *Folder, prefix string, yield func(string, Node) bool) bool {
	for _, child := range fo.Children() {
		path := prefix + "/" + child.NodeName()
		if !yield(path, child) {
			return false
		}
		if sub, ok := child.(*Folder); ok {
			if !walkFolder(sub, path, yield) {
				return false
			}
		}
	}
	return true
}
