package store

import (
	"fmt"
	"strings"
)

// pathPadWidth bounds the id magnitude representable in a path segment.
// Wider ids would break lexicographic subtree ordering, so allocation past
// this bound is rejected outright instead of silently mis-sorting.
const pathPadWidth = 8

const maxPathID = 1e8 - 1

// PathSegment renders a comment id as a fixed-width path token.
func PathSegment(id int64) (string, error) {
	if id < 0 || id > maxPathID {
		return "", fmt.Errorf("comment id %d exceeds path segment width %d", id, pathPadWidth)
	}
	return fmt.Sprintf("%0*d", pathPadWidth, id), nil
}

// ChildPath extends a parent's materialized path with one segment.
func ChildPath(parentPath string, id int64) (string, error) {
	seg, err := PathSegment(id)
	if err != nil {
		return "", err
	}
	if parentPath == "" {
		return seg, nil
	}
	return parentPath + "/" + seg, nil
}

// PathDepth returns the depth encoded by a path (segments minus one).
func PathDepth(path string) int32 {
	if path == "" {
		return 0
	}
	return int32(strings.Count(path, "/"))
}
