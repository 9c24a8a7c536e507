package detector

import "fmt"

// ValidationSeverity indicates whether a validation finding blocks layer
// building or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks layer building
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	NodeID   NodeID             // which node has the problem (zero if graph-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.NodeID.IsZero() {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] node %s: %s", e.Severity, e.NodeID.Short(), e.Message)
}

// HasErrors reports whether any finding has error severity.
func HasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate runs the structural checks on the detector tree and returns
// every finding. An empty slice means the tree is valid. Validate never
// mutates the graph.
func Validate(g *Graph) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateDAG(g)...)
	errs = append(errs, validateReferences(g)...)
	errs = append(errs, validateNames(g)...)
	errs = append(errs, validateRoots(g)...)
	errs = append(errs, validatePlacements(g)...)
	errs = append(errs, validateSensors(g)...)
	return errs
}

// validateDAG checks for cycles using DFS with 3-color marking.
// White (0) = unvisited, gray (1) = in current DFS path, black (2) = fully explored.
func validateDAG(g *Graph) []ValidationError {
	const (
		white = iota
		gray
		black
	)

	color := make(map[NodeID]int)
	var errs []ValidationError

	var visit func(id NodeID) bool // returns true if cycle found
	visit = func(id NodeID) bool {
		switch color[id] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  fmt.Sprintf("cycle detected: node %s is part of a cycle", id.Short()),
				Severity: SeverityError,
			})
			return true
		}

		color[id] = gray
		node, ok := g.Nodes[id]
		if !ok {
			// dangling; reported by validateReferences
			color[id] = black
			return false
		}
		for _, childID := range node.Children {
			if visit(childID) {
				return true
			}
		}
		color[id] = black
		return false
	}

	for id := range g.Nodes {
		if color[id] == white {
			if visit(id) {
				break
			}
		}
	}
	return errs
}

// validateReferences checks that every child reference resolves.
func validateReferences(g *Graph) []ValidationError {
	var errs []ValidationError
	for _, node := range g.Nodes {
		for _, childID := range node.Children {
			if _, ok := g.Nodes[childID]; !ok {
				errs = append(errs, ValidationError{
					NodeID:   node.ID,
					Message:  fmt.Sprintf("child reference %s does not exist", childID.Short()),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateNames checks that no two nodes share a name and that the name
// index only points at existing nodes.
func validateNames(g *Graph) []ValidationError {
	var errs []ValidationError

	for name, id := range g.NameIndex {
		if _, ok := g.Nodes[id]; !ok {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("name index entry %q references non-existent node %s", name, id.Short()),
				Severity: SeverityError,
			})
		}
	}

	nameToNodes := make(map[string][]NodeID)
	for id, node := range g.Nodes {
		if node.Name != "" {
			nameToNodes[node.Name] = append(nameToNodes[node.Name], id)
		}
	}
	for name, ids := range nameToNodes {
		if len(ids) > 1 {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("duplicate name %q assigned to %d nodes", name, len(ids)),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateRoots checks that roots exist and are volumes, and warns about
// nodes unreachable from any root.
func validateRoots(g *Graph) []ValidationError {
	var errs []ValidationError
	if len(g.Nodes) == 0 {
		return errs
	}
	if len(g.Roots) == 0 {
		return append(errs, ValidationError{
			Message:  "graph has nodes but no root volume",
			Severity: SeverityError,
		})
	}

	reachable := make(map[NodeID]bool)
	var queue []NodeID
	for _, rid := range g.Roots {
		root, ok := g.Nodes[rid]
		if !ok {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("root reference %s does not exist", rid.Short()),
				Severity: SeverityError,
			})
			continue
		}
		if root.Kind != NodeVolume {
			errs = append(errs, ValidationError{
				NodeID:   rid,
				Message:  fmt.Sprintf("root %q is a %s, not a volume", root.Name, root.Kind),
				Severity: SeverityError,
			})
		}
		if !reachable[rid] {
			reachable[rid] = true
			queue = append(queue, rid)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		node := g.Nodes[current]
		if node == nil {
			continue
		}
		for _, childID := range node.Children {
			if !reachable[childID] {
				reachable[childID] = true
				queue = append(queue, childID)
			}
		}
	}

	for id, node := range g.Nodes {
		if !reachable[id] {
			name := node.Name
			if name == "" {
				name = id.Short()
			}
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  fmt.Sprintf("node %q is not reachable from any root (orphan)", name),
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}

// validatePlacements checks that every placement positions exactly one
// volume or sensor, and that sensors are leaves.
func validatePlacements(g *Graph) []ValidationError {
	var errs []ValidationError
	for _, node := range g.Nodes {
		switch node.Kind {
		case NodePlacement:
			if len(node.Children) != 1 {
				errs = append(errs, ValidationError{
					NodeID:   node.ID,
					Message:  fmt.Sprintf("placement has %d children, expected 1", len(node.Children)),
					Severity: SeverityError,
				})
				continue
			}
			if child := g.Nodes[node.Children[0]]; child != nil && child.Kind == NodePlacement {
				errs = append(errs, ValidationError{
					NodeID:   node.ID,
					Message:  "placement positions another placement",
					Severity: SeverityError,
				})
			}
		case NodeSensor:
			if len(node.Children) > 0 {
				errs = append(errs, ValidationError{
					NodeID:   node.ID,
					Message:  fmt.Sprintf("sensor %q has children", node.Name),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateSensors checks sensor dimensions against their shape.
func validateSensors(g *Graph) []ValidationError {
	var errs []ValidationError
	for _, node := range g.Nodes {
		if node.Kind != NodeSensor {
			continue
		}
		d, ok := node.Data.(SensorData)
		if !ok {
			errs = append(errs, ValidationError{
				NodeID:   node.ID,
				Message:  fmt.Sprintf("sensor %q carries %T, not SensorData", node.Name, node.Data),
				Severity: SeverityError,
			})
			continue
		}
		bad := func(field string, v float64) {
			errs = append(errs, ValidationError{
				NodeID:   node.ID,
				Message:  fmt.Sprintf("sensor %q: %s must be positive, got %g", node.Name, field, v),
				Severity: SeverityError,
			})
		}
		switch d.Shape {
		case ShapeBox:
			if d.HalfX <= 0 {
				bad("half-x", d.HalfX)
			}
			if d.HalfY <= 0 {
				bad("half-y", d.HalfY)
			}
		case ShapeTrapezoid:
			if d.HalfX <= 0 {
				bad("half-x", d.HalfX)
			}
			if d.HalfXMax <= 0 {
				bad("half-x-max", d.HalfXMax)
			}
			if d.HalfY <= 0 {
				bad("half-y", d.HalfY)
			}
		case ShapeTube:
			if d.Radius <= 0 {
				bad("radius", d.Radius)
			}
			if d.HalfLength <= 0 {
				bad("half-length", d.HalfLength)
			}
		default:
			errs = append(errs, ValidationError{
				NodeID:   node.ID,
				Message:  fmt.Sprintf("sensor %q has unknown shape %d", node.Name, int(d.Shape)),
				Severity: SeverityError,
			})
		}
		if d.Thickness < 0 || d.HalfZ < 0 {
			errs = append(errs, ValidationError{
				NodeID:   node.ID,
				Message:  fmt.Sprintf("sensor %q: thickness must not be negative", node.Name),
				Severity: SeverityError,
			})
		}
	}
	return errs
}
