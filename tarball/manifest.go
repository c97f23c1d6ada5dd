package tarball

import (
	"encoding/json"
	"strings"

	"github.com/distribution/pkginstall/digest"
)

// Manifest is the nested path-to-digest tree produced for one package:
// a leaf Node holds a file's digest, a directory Node holds Children.
// Empty directories, links and symlinks are never represented: only
// regular files that survived path sanitisation appear.
type Manifest map[string]*Node

// Node is either a file (Digest set, Children nil) or a directory
// (Children set, Digest empty).
type Node struct {
	Digest   digest.Digest
	Children Manifest
}

// MarshalJSON renders a file Node as its digest string, and a
// directory Node as its nested object, the File Manifest's wire
// shape.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n.Children != nil {
		return json.Marshal(n.Children)
	}
	return json.Marshal(n.Digest)
}

// UnmarshalJSON accepts either shape back, so a persisted package
// map round-trips.
func (n *Node) UnmarshalJSON(data []byte) error {
	var asString digest.Digest
	if err := json.Unmarshal(data, &asString); err == nil {
		n.Digest = asString
		n.Children = nil
		return nil
	}
	var asMap Manifest
	if err := json.Unmarshal(data, &asMap); err != nil {
		return err
	}
	n.Children = asMap
	n.Digest = ""
	return nil
}

// insert records path (already sanitised and relative) in the
// manifest, creating intermediate directory Nodes on demand. Segments
// are split on "/" or "\\"; "." segments are ignored.
func (m Manifest) insert(path string, dgst digest.Digest) {
	segments := splitManifestPath(path)
	if len(segments) == 0 {
		return
	}

	cur := m
	for i, seg := range segments {
		last := i == len(segments)-1
		if last {
			cur[seg] = &Node{Digest: dgst}
			return
		}
		node, ok := cur[seg]
		if !ok || node.Children == nil {
			node = &Node{Children: Manifest{}}
			cur[seg] = node
		}
		cur = node.Children
	}
}

func splitManifestPath(path string) []string {
	raw := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	segments := raw[:0]
	for _, seg := range raw {
		if seg == "." {
			continue
		}
		segments = append(segments, seg)
	}
	return segments
}
