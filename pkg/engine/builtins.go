package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/strata/pkg/detector"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms detector Lisp source code before passing it
// to zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: inner-barrel -> inner_barrel
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpNodeRef wraps a detector.NodeID so it can be passed between builtins.
type sexpNodeRef struct {
	id   detector.NodeID
	name string // human-readable name for error messages
}

func (n *sexpNodeRef) SexpString(ps *zygo.PrintState) string {
	if n.name != "" {
		return fmt.Sprintf("(noderef %q)", n.name)
	}
	return fmt.Sprintf("(noderef %s)", n.id.Short())
}
func (n *sexpNodeRef) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a detector.Vec3.
type sexpVec3 struct {
	vec detector.Vec3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %.1f %.1f %.1f)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value â€” treat as flag with nil.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_z) and plain strings ("z").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], nil
	}
	return str.S, nil
}

// toNodeRef extracts a NodeID from a sexpNodeRef.
func toNodeRef(s zygo.Sexp) (detector.NodeID, error) {
	if ref, ok := s.(*sexpNodeRef); ok {
		return ref.id, nil
	}
	return detector.ZeroID, fmt.Errorf("expected node reference, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts a Vec3 from a sexpVec3.
func toVec3(s zygo.Sexp) (detector.Vec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return detector.Vec3{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// kwFloat reads an optional numeric keyword into dst.
func kwFloat(pa kwArgs, key string, dst *float64) error {
	v, ok := pa.kw[key]
	if !ok {
		return nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// ---------------------------------------------------------------------------
// Node ID generation
// ---------------------------------------------------------------------------

// idSource hands out unique suffixes for anonymous nodes. It is scoped to
// one evaluation so equal sources yield equal graphs.
type idSource struct {
	n int
}

func (s *idSource) next(prefix string) detector.NodeID {
	s.n++
	return detector.NewNodeID(fmt.Sprintf("%s/_anon_%d", prefix, s.n))
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// nest records that child now lives inside another volume, so it is no
// longer a top-level root.
func nest(g *detector.Graph, child detector.NodeID) {
	if n := g.Get(child); n != nil && n.Kind == detector.NodeVolume {
		g.RemoveRoot(child)
	}
}

// addPlacement creates a placement node around child.
func addPlacement(g *detector.Graph, ids *idSource, child detector.NodeID, name string, pd detector.PlacementData) *sexpNodeRef {
	id := ids.next("place")
	if name != "" {
		id = detector.NewNodeID("place/" + name)
	}
	g.AddNode(&detector.Node{
		ID:       id,
		Kind:     detector.NodePlacement,
		Name:     name,
		Children: []detector.NodeID{child},
		Data:     pd,
	})
	nest(g, child)
	return &sexpNodeRef{id: id, name: name}
}

// registerBuiltins installs the detector DSL builtins into a zygomys
// environment. The builtins populate g during evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, g *detector.Graph) {
	ids := &idSource{}

	// -----------------------------------------------------------------------
	// (unit 10)   ; mm per model unit
	// -----------------------------------------------------------------------
	env.AddFunction("unit", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("unit requires exactly 1 argument, got %d", len(args))
		}
		u, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("unit: %w", err)
		}
		if u <= 0 {
			return zygo.SexpNull, fmt.Errorf("unit: must be positive, got %g", u)
		}
		g.Unit = u
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}

		x, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: x: %w", err)
		}
		y, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: y: %w", err)
		}
		z, err := toFloat64(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: z: %w", err)
		}

		return &sexpVec3{vec: detector.Vec3{X: x, Y: y, Z: z}}, nil
	})

	// -----------------------------------------------------------------------
	// (sensor "PixelModule" :shape :box :half-x 8 :half-y 32 :half-z 0.15
	//         :thickness 0.3)
	// -----------------------------------------------------------------------
	env.AddFunction("sensor", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("sensor requires a name argument")
		}
		sensorName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sensor: name: %w", err)
		}

		sd := detector.SensorData{Shape: detector.ShapeBox}
		if v, ok := pa.kw["shape"]; ok {
			shapeName, err := toKeywordString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("sensor: shape: %w", err)
			}
			if sd.Shape, err = detector.ParseShape(shapeName); err != nil {
				return zygo.SexpNull, fmt.Errorf("sensor: %w", err)
			}
		}
		for key, dst := range map[string]*float64{
			"half-x":      &sd.HalfX,
			"half-x-max":  &sd.HalfXMax,
			"half-y":      &sd.HalfY,
			"half-z":      &sd.HalfZ,
			"radius":      &sd.Radius,
			"half-length": &sd.HalfLength,
			"thickness":   &sd.Thickness,
		} {
			if err := kwFloat(pa, key, dst); err != nil {
				return zygo.SexpNull, fmt.Errorf("sensor: %w", err)
			}
		}

		id := detector.NewNodeID("sensor/" + sensorName)
		g.AddNode(&detector.Node{ID: id, Kind: detector.NodeSensor, Name: sensorName, Data: sd})
		return &sexpNodeRef{id: id, name: sensorName}, nil
	})

	// -----------------------------------------------------------------------
	// (straw "Straw" :radius 2 :half-length 700 :thickness 0.03)
	// -----------------------------------------------------------------------
	env.AddFunction("straw", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("straw requires a name argument")
		}
		strawName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("straw: name: %w", err)
		}

		sd := detector.SensorData{Shape: detector.ShapeTube}
		for key, dst := range map[string]*float64{
			"radius":      &sd.Radius,
			"half-length": &sd.HalfLength,
			"thickness":   &sd.Thickness,
		} {
			if err := kwFloat(pa, key, dst); err != nil {
				return zygo.SexpNull, fmt.Errorf("straw: %w", err)
			}
		}

		id := detector.NewNodeID("sensor/" + strawName)
		g.AddNode(&detector.Node{ID: id, Kind: detector.NodeSensor, Name: strawName, Data: sd})
		return &sexpNodeRef{id: id, name: strawName}, nil
	})

	// -----------------------------------------------------------------------
	// (part "name")
	// -----------------------------------------------------------------------
	env.AddFunction("part", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 {
			return zygo.SexpNull, fmt.Errorf("part requires a name argument")
		}

		partName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("part: name: %w", err)
		}

		n := g.Lookup(partName)
		if n == nil {
			return zygo.SexpNull, fmt.Errorf("part: no part named %q", partName)
		}

		return &sexpNodeRef{id: n.ID, name: partName}, nil
	})

	// -----------------------------------------------------------------------
	// (place (part "PixelModule") :at (vec3 0 32 0) :rot (vec3 0 90 0)
	//        :name "Pixel_0")
	// -----------------------------------------------------------------------
	env.AddFunction("place", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)

		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("place requires a part reference as first argument")
		}

		childID, err := toNodeRef(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("place: part: %w", err)
		}

		pd := detector.PlacementData{}
		if v, ok := pa.kw["at"]; ok {
			if pd.Translation, err = toVec3(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("place: at: %w", err)
			}
		}
		if v, ok := pa.kw["rot"]; ok {
			if pd.Rotation, err = toVec3(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("place: rot: %w", err)
			}
		}
		var placeName string
		if v, ok := pa.kw["name"]; ok {
			if placeName, err = toString(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("place: name: %w", err)
			}
		}

		return addPlacement(g, ids, childID, placeName, pd), nil
	})

	// -----------------------------------------------------------------------
	// (ring (part "PixelModule") :count 16 :radius 32 :z 0 :tilt 10 :phase 0)
	//
	// Places count copies evenly in phi at the given radius and returns
	// them as a list. Planar sensors are turned so their normal points
	// away from the beam line and then tilted about their long axis;
	// straws stay parallel to the beam line.
	// -----------------------------------------------------------------------
	env.AddFunction("ring", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("ring requires a part reference as first argument")
		}
		childID, err := toNodeRef(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("ring: part: %w", err)
		}

		var count, radius, z, tilt, phase float64
		for key, dst := range map[string]*float64{
			"count":  &count,
			"radius": &radius,
			"z":      &z,
			"tilt":   &tilt,
			"phase":  &phase,
		} {
			if err := kwFloat(pa, key, dst); err != nil {
				return zygo.SexpNull, fmt.Errorf("ring: %w", err)
			}
		}
		if count < 1 || count != math.Trunc(count) {
			return zygo.SexpNull, fmt.Errorf("ring: count must be a positive integer, got %g", count)
		}
		if radius < 0 {
			return zygo.SexpNull, fmt.Errorf("ring: radius must not be negative, got %g", radius)
		}

		straw := false
		if child := g.Get(childID); child != nil {
			if sd, ok := child.Data.(detector.SensorData); ok && sd.Shape == detector.ShapeTube {
				straw = true
			}
		}

		n := int(count)
		refs := make([]zygo.Sexp, 0, n)
		for i := 0; i < n; i++ {
			phiDeg := phase + 360*float64(i)/count
			phi := phiDeg * math.Pi / 180
			pd := detector.PlacementData{
				Translation: detector.Vec3{X: radius * math.Cos(phi), Y: radius * math.Sin(phi), Z: z},
				Rotation:    detector.Vec3{Y: 90, Z: phiDeg + tilt},
			}
			if straw {
				pd.Rotation = detector.Vec3{Z: phiDeg}
			}
			refs = append(refs, addPlacement(g, ids, childID, "", pd))
		}
		return zygo.MakeList(refs), nil
	})

	// -----------------------------------------------------------------------
	// (volume "Barrel" (place ...) (ring ...) ...)
	// -----------------------------------------------------------------------
	env.AddFunction("volume", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 {
			return zygo.SexpNull, fmt.Errorf("volume requires a name argument")
		}

		volName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("volume: name: %w", err)
		}

		var children []detector.NodeID
		for i := 1; i < len(args); i++ {
			if ref, ok := args[i].(*sexpNodeRef); ok {
				children = append(children, ref.id)
				continue
			}
			items, err := sexpListToSlice(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("volume: child %d: expected node reference or list, got %T (%s)",
					i, args[i], args[i].SexpString(nil))
			}
			for _, item := range items {
				id, err := toNodeRef(item)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("volume: child %d: %w", i, err)
				}
				children = append(children, id)
			}
		}

		id := detector.NewNodeID("volume/" + volName)
		g.AddNode(&detector.Node{
			ID:       id,
			Kind:     detector.NodeVolume,
			Name:     volName,
			Children: children,
			Data:     detector.VolumeData{},
		})
		for _, c := range children {
			nest(g, c)
		}
		g.AddRoot(id)

		return &sexpNodeRef{id: id, name: volName}, nil
	})
}
