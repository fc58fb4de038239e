package scene

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var ErrNotPLY = errors.New("scene: not a PLY file")

// PLYProperty is one property line of a PLY header
type PLYProperty struct {
	Name     string
	Type     string // scalar type, empty for lists
	IsList   bool
	ListType string // type of the list count
	DataType string // type of the list items
}

// PLYHeader is what a plymesh shape needs to know about its file without
// reading the vertex data
type PLYHeader struct {
	Format      string // ascii, binary_little_endian or binary_big_endian
	Version     string
	VertexCount int
	FaceCount   int
	VertexProps []PLYProperty
	FaceProps   []PLYProperty
}

// HasNormals reports whether the vertices carry nx, ny and nz
func (h *PLYHeader) HasNormals() bool {
	found := 0
	for _, p := range h.VertexProps {
		switch p.Name {
		case "nx", "ny", "nz":
			found++
		}
	}
	return found == 3
}

// ReadPLYHeader parses a PLY header up to end_header
func ReadPLYHeader(r io.Reader) (*PLYHeader, error) {
	header := &PLYHeader{}
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != "ply" {
		return nil, ErrNotPLY
	}

	var currentElement string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "end_header" {
			if header.Format == "" {
				return nil, fmt.Errorf("%w: missing format line", ErrNotPLY)
			}
			return header, nil
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "format":
			if len(parts) >= 3 {
				header.Format = parts[1]
				header.Version = parts[2]
			}
		case "element":
			if len(parts) < 3 {
				return nil, fmt.Errorf("invalid element line: %q", line)
			}
			count, err := strconv.Atoi(parts[2])
			if err != nil || count < 0 {
				return nil, fmt.Errorf("invalid element count: %s", parts[2])
			}
			currentElement = parts[1]
			switch currentElement {
			case "vertex":
				header.VertexCount = count
			case "face":
				header.FaceCount = count
			}
		case "property":
			prop, err := parsePLYProperty(parts[1:])
			if err != nil {
				return nil, err
			}
			switch currentElement {
			case "vertex":
				header.VertexProps = append(header.VertexProps, prop)
			case "face":
				header.FaceProps = append(header.FaceProps, prop)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}
	return nil, fmt.Errorf("%w: missing end_header", ErrNotPLY)
}

func parsePLYProperty(parts []string) (PLYProperty, error) {
	if len(parts) < 2 {
		return PLYProperty{}, fmt.Errorf("invalid property definition")
	}
	if parts[0] == "list" {
		if len(parts) < 4 {
			return PLYProperty{}, fmt.Errorf("invalid list property definition")
		}
		return PLYProperty{IsList: true, ListType: parts[1], DataType: parts[2], Name: parts[3]}, nil
	}
	return PLYProperty{Type: parts[0], Name: parts[1]}, nil
}

// countTriangles estimates the triangles of the recorded shapes. Meshes
// carry their index lists, plymesh files are counted from their header
// assuming triangulated faces.
func (c *Context) countTriangles() int {
	total := 0
	for _, s := range c.desc.Shapes {
		switch s.Name {
		case "trianglemesh", "mesh":
			if p, ok := s.Params.Lookup("indices"); ok {
				total += len(p.Ints) / 3
			}
		case "plymesh":
			name := s.Params.FindOneString("filename", "")
			if name == "" {
				continue
			}
			f, err := os.Open(name)
			if err != nil {
				c.logger.Warningf("Unable to open plymesh %s: %v", name, err)
				continue
			}
			header, err := ReadPLYHeader(f)
			f.Close()
			if err != nil {
				c.logger.Warningf("Unable to read plymesh %s: %v", name, err)
				continue
			}
			total += header.FaceCount
		}
	}
	return total
}
