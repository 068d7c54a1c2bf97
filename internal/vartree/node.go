package vartree

// NodeKind distinguishes scope roots from variables.
type NodeKind int

const (
	KindScope NodeKind = iota
	KindVariable
)

// Node is the universal record for one scope or variable at the current
// pause. A node never outlives the pause that created it; its id does.
type Node struct {
	ID       string
	Name     string
	Value    string // raw adapter value; previews are rendered at projection time
	TypeName string
	Ref      int // DAP variablesReference; 0 means terminal, no fetch ever
	Kind     NodeKind

	// Fetched=false means the children are unknown, not absent. The real
	// empty case is Fetched=true with an empty Children list.
	Fetched  bool
	Children []string // ordered child ids, valid only when Fetched
	FetchErr string   // last fetch failure, kept for row annotation
}

// HasChildren reports whether the adapter declared expandable structure.
func (n *Node) HasChildren() bool {
	return n.Ref != 0
}

func (n *Node) clone() *Node {
	out := *n
	out.Children = append([]string(nil), n.Children...)
	return &out
}

// RawScope is one entry of a stack frame's scope list.
type RawScope struct {
	Name string
	Ref  int
}

// RawVariable is one descriptor returned by the resolver for a reference.
type RawVariable struct {
	Name  string
	Value string
	Type  string
	Ref   int
}
