// Package loaders reads scene description files and replays them through a
// scene.API.
package loaders

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/df07/go-render-farm/pkg/paramset"
	"github.com/df07/go-render-farm/pkg/scene"
)

var ErrSyntax = errors.New("loaders: syntax error")

// token is a lexical element of a scene file
type token struct {
	text   string
	quoted bool
	line   int
}

func (t token) isOpen() bool  { return !t.quoted && t.text == "[" }
func (t token) isClose() bool { return !t.quoted && t.text == "]" }

// isDirective reports whether the token starts a statement: an unquoted
// identifier
func (t token) isDirective() bool {
	if t.quoted || t.text == "" {
		return false
	}
	c := t.text[0]
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// tokenize splits scene file content into tokens, respecting quoted strings
// and treating brackets as separate tokens. Comments run to end of line.
func tokenize(r io.Reader) ([]token, error) {
	var tokens []token
	var current strings.Builder
	line := 1
	inQuotes := false
	inComment := false

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, token{text: current.String(), line: line})
			current.Reset()
		}
	}

	br := bufio.NewReader(r)
	for {
		char, _, err := br.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading input: %w", err)
		}

		if inComment {
			if char == '\n' {
				inComment = false
				line++
			}
			continue
		}
		if inQuotes {
			switch char {
			case '"':
				tokens = append(tokens, token{text: current.String(), quoted: true, line: line})
				current.Reset()
				inQuotes = false
			case '\n':
				return nil, fmt.Errorf("%w: line %d: unterminated string", ErrSyntax, line)
			default:
				current.WriteRune(char)
			}
			continue
		}

		switch char {
		case '"':
			flush()
			inQuotes = true
		case '#':
			flush()
			inComment = true
		case '[', ']':
			flush()
			tokens = append(tokens, token{text: string(char), line: line})
		case ' ', '\t', '\r':
			flush()
		case '\n':
			flush()
			line++
		default:
			current.WriteRune(char)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("%w: line %d: unterminated string", ErrSyntax, line)
	}
	flush()
	return tokens, nil
}

// statement is a directive and its arguments up to the next directive
type statement struct {
	name string
	args []token
	line int
}

func (s statement) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s: %s", ErrSyntax, s.line, s.name, fmt.Sprintf(format, args...))
}

func splitStatements(tokens []token) ([]statement, error) {
	var stmts []statement
	for _, t := range tokens {
		if t.isDirective() {
			stmts = append(stmts, statement{name: t.text, line: t.line})
			continue
		}
		if len(stmts) == 0 {
			return nil, fmt.Errorf("%w: line %d: unexpected %q before first directive", ErrSyntax, t.line, t.text)
		}
		last := &stmts[len(stmts)-1]
		last.args = append(last.args, t)
	}
	return stmts, nil
}

// Parse reads a scene description and replays it through api. It returns
// the first syntax error, or the WorldEnd result.
func Parse(r io.Reader, api scene.API) error {
	tokens, err := tokenize(r)
	if err != nil {
		return err
	}
	stmts, err := splitStatements(tokens)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if err := apply(s, api); err != nil {
			return err
		}
	}
	return nil
}

// Load opens and parses a scene file
func Load(filename string, api scene.API) error {
	if err := validateFilePath(filename); err != nil {
		return err
	}
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open scene file: %w", err)
	}
	defer file.Close()
	return Parse(file, api)
}

// validateFilePath rejects names the loader will not open
func validateFilePath(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if strings.Contains(filename, "\x00") {
		return fmt.Errorf("invalid file path: null bytes not allowed")
	}
	clean := filepath.Clean(filename)
	if len(clean) > 512 {
		return fmt.Errorf("file path too long: maximum 512 characters allowed")
	}
	ext := strings.ToLower(filepath.Ext(clean))
	for _, allowed := range scene.SceneFileExtensions {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("invalid file type %q: expected one of %v", ext, scene.SceneFileExtensions)
}

// apply dispatches one statement to the matching API call
func apply(s statement, api scene.API) error {
	switch s.name {
	case "Identity":
		return noArgs(s, api.Identity)
	case "WorldBegin":
		return noArgs(s, api.WorldBegin)
	case "AttributeBegin":
		return noArgs(s, api.AttributeBegin)
	case "AttributeEnd":
		return noArgs(s, api.AttributeEnd)
	case "TransformBegin":
		return noArgs(s, api.TransformBegin)
	case "TransformEnd":
		return noArgs(s, api.TransformEnd)
	case "ObjectEnd":
		return noArgs(s, api.ObjectEnd)
	case "MotionEnd":
		return noArgs(s, api.MotionEnd)
	case "ReverseOrientation":
		return noArgs(s, api.ReverseOrientation)
	case "WorldEnd":
		if len(s.args) != 0 {
			return s.errorf("takes no arguments")
		}
		return api.WorldEnd()

	case "Translate", "Scale", "Rotate", "LookAt", "SetEpsilon":
		return applyFloats(s, api)
	case "ConcatTransform", "Transform":
		v, err := floatList(s, s.args)
		if err != nil {
			return err
		}
		if len(v) != 16 {
			return s.errorf("expected 16 values, got %d", len(v))
		}
		var m [16]float32
		copy(m[:], v)
		if s.name == "Transform" {
			api.Transform(m)
		} else {
			api.ConcatTransform(m)
		}
		return nil

	case "CoordinateSystem":
		return oneName(s, api.CoordinateSystem)
	case "CoordSysTransform":
		return oneName(s, api.CoordSysTransform)
	case "NamedMaterial":
		return oneName(s, api.NamedMaterial)
	case "ObjectBegin":
		return oneName(s, api.ObjectBegin)
	case "ObjectInstance":
		return oneName(s, api.ObjectInstance)
	case "PortalInstance":
		return oneName(s, api.PortalInstance)
	case "Exterior":
		return oneName(s, api.Exterior)
	case "Interior":
		return oneName(s, api.Interior)

	case "MotionBegin":
		v, err := floatList(s, s.args)
		if err != nil {
			return err
		}
		api.MotionBegin(v)
		return nil
	case "MotionInstance":
		if len(s.args) != 4 || !s.args[0].quoted || !s.args[3].quoted {
			return s.errorf("expected \"name\" start end \"coordsys\"")
		}
		times, err := floatList(s, s.args[1:3])
		if err != nil {
			return err
		}
		api.MotionInstance(s.args[0].text, times[0], times[1], s.args[3].text)
		return nil

	case "Texture":
		names, ps, err := namedParams(s, 3)
		if err != nil {
			return err
		}
		api.Texture(names[0], names[1], names[2], ps)
		return nil
	case "MakeNamedVolume":
		names, ps, err := namedParams(s, 2)
		if err != nil {
			return err
		}
		api.MakeNamedVolume(names[0], names[1], ps)
		return nil
	}

	call, ok := paramCalls(api)[s.name]
	if !ok {
		return s.errorf("unknown directive")
	}
	names, ps, err := namedParams(s, 1)
	if err != nil {
		return err
	}
	call(names[0], ps)
	return nil
}

// paramCalls maps the directives of the form Name "type" params...
func paramCalls(api scene.API) map[string]func(string, *paramset.ParamSet) {
	return map[string]func(string, *paramset.ParamSet){
		"PixelFilter":       api.PixelFilter,
		"Film":              api.Film,
		"Sampler":           api.Sampler,
		"Accelerator":       api.Accelerator,
		"SurfaceIntegrator": api.SurfaceIntegrator,
		"VolumeIntegrator":  api.VolumeIntegrator,
		"Renderer":          api.Renderer,
		"Camera":            api.Camera,
		"Material":          api.Material,
		"MakeNamedMaterial": api.MakeNamedMaterial,
		"LightGroup":        api.LightGroup,
		"LightSource":       api.LightSource,
		"AreaLightSource":   api.AreaLightSource,
		"PortalShape":       api.PortalShape,
		"Shape":             api.Shape,
		"Volume":            api.Volume,
	}
}

func noArgs(s statement, call func()) error {
	if len(s.args) != 0 {
		return s.errorf("takes no arguments")
	}
	call()
	return nil
}

func oneName(s statement, call func(string)) error {
	if len(s.args) != 1 || !s.args[0].quoted {
		return s.errorf("expected one quoted name")
	}
	call(s.args[0].text)
	return nil
}

func applyFloats(s statement, api scene.API) error {
	want := map[string]int{"Translate": 3, "Scale": 3, "Rotate": 4, "LookAt": 9, "SetEpsilon": 2}[s.name]
	v, err := floatList(s, s.args)
	if err != nil {
		return err
	}
	if len(v) != want {
		return s.errorf("expected %d values, got %d", want, len(v))
	}
	switch s.name {
	case "Translate":
		api.Translate(v[0], v[1], v[2])
	case "Scale":
		api.Scale(v[0], v[1], v[2])
	case "Rotate":
		api.Rotate(v[0], v[1], v[2], v[3])
	case "LookAt":
		api.LookAt(v[0], v[1], v[2], v[3], v[4], v[5], v[6], v[7], v[8])
	case "SetEpsilon":
		api.SetEpsilon(v[0], v[1])
	}
	return nil
}

// floatList parses bare numbers, optionally enclosed in one bracket pair
func floatList(s statement, args []token) ([]float32, error) {
	if len(args) >= 2 && args[0].isOpen() && args[len(args)-1].isClose() {
		args = args[1 : len(args)-1]
	}
	out := make([]float32, 0, len(args))
	for _, a := range args {
		if a.quoted || a.isOpen() || a.isClose() {
			return nil, s.errorf("expected a number, got %q", a.text)
		}
		v, err := strconv.ParseFloat(a.text, 32)
		if err != nil {
			return nil, s.errorf("invalid number %q", a.text)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

// namedParams reads n leading quoted names followed by a parameter list
func namedParams(s statement, n int) ([]string, *paramset.ParamSet, error) {
	if len(s.args) < n {
		return nil, nil, s.errorf("expected %d quoted names", n)
	}
	names := make([]string, n)
	for i := 0; i < n; i++ {
		if !s.args[i].quoted {
			return nil, nil, s.errorf("expected a quoted name, got %q", s.args[i].text)
		}
		names[i] = s.args[i].text
	}
	ps, err := parseParams(s, s.args[n:])
	return names, ps, err
}

// parseParams reads "type name" value pairs, where a value is a single token
// or a bracketed list
func parseParams(s statement, args []token) (*paramset.ParamSet, error) {
	ps := paramset.New()
	for i := 0; i < len(args); {
		decl := args[i]
		if !decl.quoted {
			return nil, s.errorf("expected a parameter declaration, got %q", decl.text)
		}
		fields := strings.Fields(decl.text)
		if len(fields) != 2 {
			return nil, s.errorf("bad parameter declaration %q", decl.text)
		}
		i++

		var values []token
		switch {
		case i < len(args) && args[i].isOpen():
			end := i + 1
			for end < len(args) && !args[end].isClose() {
				end++
			}
			if end == len(args) {
				return nil, s.errorf("unterminated list for %q", fields[1])
			}
			values = args[i+1 : end]
			i = end + 1
		case i < len(args):
			values = args[i : i+1]
			i++
		default:
			return nil, s.errorf("missing value for %q", fields[1])
		}

		if err := addParam(ps, fields[0], fields[1], values); err != nil {
			return nil, s.errorf("%v", err)
		}
	}
	return ps, nil
}

func addParam(ps *paramset.ParamSet, typ, name string, values []token) error {
	switch typ {
	case paramset.TypeString, paramset.TypeTexture:
		strs := make([]string, len(values))
		for i, v := range values {
			if !v.quoted {
				return fmt.Errorf("%s %q expects quoted values", typ, name)
			}
			strs[i] = v.text
		}
		if typ == paramset.TypeTexture {
			if len(strs) != 1 {
				return fmt.Errorf("texture %q expects one value", name)
			}
			ps.AddTexture(name, strs[0])
		} else {
			ps.AddString(name, strs...)
		}
	case paramset.TypeBool:
		bools := make([]bool, len(values))
		for i, v := range values {
			b, err := strconv.ParseBool(v.text)
			if err != nil {
				return fmt.Errorf("bool %q: invalid value %q", name, v.text)
			}
			bools[i] = b
		}
		ps.AddBool(name, bools...)
	case paramset.TypeInt:
		ints := make([]int32, len(values))
		for i, v := range values {
			n, err := strconv.ParseInt(v.text, 10, 32)
			if err != nil {
				return fmt.Errorf("integer %q: invalid value %q", name, v.text)
			}
			ints[i] = int32(n)
		}
		ps.AddInt(name, ints...)
	default:
		nums := make([]float32, len(values))
		for i, v := range values {
			f, err := strconv.ParseFloat(v.text, 32)
			if v.quoted || err != nil {
				return fmt.Errorf("%s %q: invalid value %q", typ, name, v.text)
			}
			nums[i] = float32(f)
		}
		switch typ {
		case paramset.TypeFloat:
			ps.AddFloat(name, nums...)
		case paramset.TypePoint:
			ps.AddPoint(name, nums...)
		case paramset.TypeVector:
			ps.AddVector(name, nums...)
		case paramset.TypeNormal:
			ps.AddNormal(name, nums...)
		case paramset.TypeColor, "rgb":
			ps.AddColor(name, nums...)
		default:
			return fmt.Errorf("unknown parameter type %q", typ)
		}
	}
	return nil
}
