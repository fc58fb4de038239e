package loaders

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-render-farm/pkg/paramset"
	"github.com/df07/go-render-farm/pkg/scene"
)

const cornellScene = `# Scene: Small Cornell
LookAt 278 278 -800  278 278 0  0 1 0
Camera "perspective" "float fov" [40]
Film "fleximage"
	"integer xresolution" [20] "integer yresolution" [10]
	"bool write_png" ["false"]
	"integer haltspp" 4
PixelFilter "box" "float xwidth" [0.5] "float ywidth" [0.5]

WorldBegin

MakeNamedMaterial "white" "string type" ["matte"] "color Kd" [0.73 0.73 0.73]
Texture "checks" "color" "checkerboard" "float uscale" [4] "color tex1" [1 0 0]

AttributeBegin  # ceiling light
	LightGroup "ceiling"
	AreaLightSource "area" "color L" [15 15 15]
	Translate 0 554 0
	Shape "trianglemesh"
		"integer indices" [0 1 2 0 2 3]
		"point P" [0 0 0  130 0 0  130 0 130  0 0 130]
AttributeEnd

NamedMaterial "white"
ObjectBegin "ball"
	Shape "sphere" "float radius" 10
ObjectEnd
TransformBegin
	Rotate 90 0 1 0
	ObjectInstance "ball"
TransformEnd

WorldEnd
`

func TestParseScene(t *testing.T) {
	ctx := scene.NewContext()
	require.NoError(t, Parse(strings.NewReader(cornellScene), ctx))
	require.NoError(t, ctx.Err())

	d := ctx.Description()
	assert.Equal(t, 20, d.Film.Params.FindOneInt("xresolution", 0))
	assert.False(t, d.Film.Params.FindOneBool("write_png", true))
	assert.Equal(t, "box", d.PixelFilter.Name)
	assert.Equal(t, float32(40), d.Camera.Params.FindOneFloat("fov", 0))

	require.Len(t, d.Textures, 1)
	assert.Equal(t, "checkerboard", d.Textures[0].Class)
	assert.Equal(t, []float32{1, 0, 0}, d.Textures[0].Params.FindFloats("tex1"))

	require.Len(t, d.Shapes, 1)
	mesh := d.Shapes[0]
	assert.Len(t, mesh.Params.FindFloats("P"), 12)
	p, ok := mesh.Params.Lookup("indices")
	require.True(t, ok)
	assert.Equal(t, []int32{0, 1, 2, 0, 2, 3}, p.Ints)
	assert.Equal(t, scene.TranslateMatrix(0, 554, 0), mesh.Transform)

	assert.Equal(t, []string{"ceiling"}, d.LightGroups)
	assert.Len(t, d.Objects["ball"], 1)
	require.Len(t, d.Instances, 1)
	assert.Equal(t, "white", d.Instances[0].Material)

	w, h := ctx.RenderFilm().Size()
	assert.Equal(t, 20, w)
	assert.Equal(t, 10, h)
	assert.Equal(t, 4.0, ctx.HaltSamplesPerPixel())
}

func TestTokenize(t *testing.T) {
	tokens, err := tokenize(strings.NewReader("Shape \"sphere\" # comment \"ignored\"\n\"float radius\" [1.5]"))
	require.NoError(t, err)

	var texts []string
	for _, tok := range tokens {
		texts = append(texts, tok.text)
	}
	assert.Equal(t, []string{"Shape", "sphere", "float radius", "[", "1.5", "]"}, texts)
	assert.True(t, tokens[1].quoted)
	assert.False(t, tokens[4].quoted)
	assert.Equal(t, 2, tokens[2].line)
}

func TestParseParamTypes(t *testing.T) {
	s := statement{name: "Shape", line: 1}
	tokens, err := tokenize(strings.NewReader(`"integer n" [1 2] "bool b" "true" "float f" 0.5
		"point p" [1 2 3] "vector v" [0 1 0] "normal nn" [0 0 1] "rgb c" [1 1 1]
		"string s" ["a" "b"] "texture t" "checks"`))
	require.NoError(t, err)

	ps, err := parseParams(s, tokens)
	require.NoError(t, err)

	types := map[string]string{}
	for _, p := range ps.Params {
		types[p.Name] = p.Type
	}
	assert.Equal(t, map[string]string{
		"n": paramset.TypeInt, "b": paramset.TypeBool, "f": paramset.TypeFloat,
		"p": paramset.TypePoint, "v": paramset.TypeVector, "nn": paramset.TypeNormal,
		"c": paramset.TypeColor, "s": paramset.TypeString, "t": paramset.TypeTexture,
	}, types)
	assert.True(t, ps.FindOneBool("b", false))
	assert.Equal(t, "checks", ps.FindOneString("t", ""))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown directive", `Teapot "big"`},
		{"unterminated string", "Shape \"sphere\n"},
		{"bad number", `Translate 1 x2 3`},
		{"wrong value count", `Translate 1 2`},
		{"unquoted name", `NamedMaterial white`},
		{"missing value", `Shape "sphere" "float radius"`},
		{"unterminated list", `Shape "sphere" "float radius" [1`},
		{"unknown param type", `Shape "sphere" "quaternion q" [1 2 3 4]`},
		{"bad declaration", `Shape "sphere" "radius" 1`},
		{"value before directive", `1 2 3`},
		{"arguments to WorldBegin", `WorldBegin 1`},
		{"short transform", `ConcatTransform [1 0 0 1]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Parse(strings.NewReader(tt.input), scene.NewContext())
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestParseReturnsWorldEndError(t *testing.T) {
	err := Parse(strings.NewReader("WorldBegin\nShape \"sphere\"\nWorldEnd\n"), scene.NewContext())
	assert.ErrorIs(t, err, scene.ErrNoLights)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cornell.lxs")
	require.NoError(t, os.WriteFile(path, []byte(cornellScene), 0o644))

	ctx := scene.NewContext()
	require.NoError(t, Load(path, ctx))
	assert.NotNil(t, ctx.RenderFilm())

	assert.Error(t, Load(filepath.Join(dir, "cornell.txt"), scene.NewContext()))
	assert.Error(t, Load(filepath.Join(dir, "missing.lxs"), scene.NewContext()))
	assert.Error(t, Load("", scene.NewContext()))
}
