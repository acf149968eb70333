package store

import "strings"

// EntityKind is the category of parent object a comment thread attaches to.
type EntityKind string

const (
	KindNovel       EntityKind = "novel"
	KindReadingList EntityKind = "readingList"
)

// Binding maps one entity kind onto its storage: the comment table, the
// column holding the parent reference, the id sequence namespace, and the
// parent entity table consulted by the Postgres resolver. All operations
// dispatch through this table; supporting a new kind is one new entry plus
// one new backing table.
type Binding struct {
	Kind        EntityKind
	Table       string
	RefColumn   string
	Sequence    string
	EntityTable string
	EntityIDCol string
}

var bindings = map[EntityKind]Binding{
	KindNovel: {
		Kind:        KindNovel,
		Table:       "novel_comments",
		RefColumn:   "novel_ref",
		Sequence:    "novel_comment_id",
		EntityTable: "novels",
		EntityIDCol: "novel_uuid",
	},
	KindReadingList: {
		Kind:        KindReadingList,
		Table:       "reading_list_comments",
		RefColumn:   "list_ref",
		Sequence:    "reading_list_comment_id",
		EntityTable: "reading_lists",
		EntityIDCol: "list_uuid",
	},
}

// BindingFor returns the storage binding for a kind.
func BindingFor(kind EntityKind) (Binding, bool) {
	b, ok := bindings[kind]
	return b, ok
}

// Kinds lists the supported entity kinds.
func Kinds() []EntityKind {
	return []EntityKind{KindNovel, KindReadingList}
}

// ParseKind maps external spellings (URL segments, event payloads) onto an
// EntityKind.
func ParseKind(s string) (EntityKind, bool) {
	switch strings.TrimSpace(s) {
	case "novel", "novels":
		return KindNovel, true
	case "readingList", "reading-list", "reading-lists":
		return KindReadingList, true
	default:
		return "", false
	}
}
