package detector

import "github.com/google/uuid"

// NodeID is a content-addressed identifier for tree nodes. Equal paths
// always yield equal IDs.
type NodeID string

// ZeroID is the empty NodeID.
const ZeroID NodeID = ""

// namespace scopes node IDs so they never collide with other SHA-1 UUIDs.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("strata/detector"))

// NewNodeID derives the ID for the node created at path.
func NewNodeID(path string) NodeID {
	return NodeID(uuid.NewSHA1(namespace, []byte(path)).String())
}

// IsZero reports whether id is unset.
func (id NodeID) IsZero() bool { return id == ZeroID }

// Short returns the first eight characters of the ID, for messages.
func (id NodeID) Short() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8])
}

func (id NodeID) String() string { return string(id) }

// NodeKind enumerates the types of nodes in the detector tree.
type NodeKind int

const (
	NodeVolume    NodeKind = iota // named container
	NodePlacement                 // positioned instance of one child
	NodeSensor                    // sensitive element
)

func (k NodeKind) String() string {
	switch k {
	case NodeVolume:
		return "volume"
	case NodePlacement:
		return "placement"
	case NodeSensor:
		return "sensor"
	default:
		return "unknown"
	}
}

// Node is the fundamental element of the detector tree.
type Node struct {
	ID       NodeID   `json:"id"`
	Kind     NodeKind `json:"kind"`
	Name     string   `json:"name,omitempty"`
	Children []NodeID `json:"children,omitempty"`
	Data     NodeData `json:"data"`
}

// NodeData is the interface for kind-specific node payloads.
type NodeData interface {
	nodeData() // marker method restricting implementations to this package
}
