// Package uniforms defines the uniform block layouts shared with the
// shaders and the per-frame ring pools they are written into.
package uniforms

import (
	"encoding/binary"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// ViewProjection matches `uniform VP { mat4 view; mat4 proj; }`.
type ViewProjection struct {
	View mgl32.Mat4
	Proj mgl32.Mat4
}

// Light matches `uniform LightData { vec3 position; vec3 colour; float intensity; }`.
// std140 starts every vec3 on a 16 byte boundary.
type Light struct {
	Position  [3]float32
	_         [4]byte
	Colour    [3]float32
	Intensity float32
}

func NewLight(position, colour [3]float32, intensity float32) Light {
	return Light{Position: position, Colour: colour, Intensity: intensity}
}

// Camera matches `uniform Camera { vec3 position; uint dt; }`.
type Camera struct {
	Position [3]float32
	Elapsed  uint32
}

type field struct {
	name   string
	offset uintptr
}

type blockLayout struct {
	value  any
	size   int
	fields []field
}

// Offsets as declared by the std140 blocks in shaders/.
var blockLayouts = []blockLayout{
	{
		value: ViewProjection{},
		size:  128,
		fields: []field{
			{name: "View", offset: 0},
			{name: "Proj", offset: 64},
		},
	},
	{
		value: Light{},
		size:  32,
		fields: []field{
			{name: "Position", offset: 0},
			{name: "Colour", offset: 16},
			{name: "Intensity", offset: 28},
		},
	},
	{
		value: Camera{},
		size:  16,
		fields: []field{
			{name: "Position", offset: 0},
			{name: "Elapsed", offset: 12},
		},
	},
}

// Validate checks the Go layouts against the shader blocks. Run once at
// startup; a mismatch means the shaders and this package disagree.
func Validate() error {
	for _, b := range blockLayouts {
		typ := reflect.TypeOf(b.value)

		if size := binary.Size(b.value); size != b.size {
			return errors.AssertionFailedf("uniform %s encodes to %d bytes, shader expects %d", typ.Name(), size, b.size)
		}
		if size := int(typ.Size()); size != b.size {
			return errors.AssertionFailedf("uniform %s is %d bytes in memory, shader expects %d", typ.Name(), size, b.size)
		}

		for _, f := range b.fields {
			sf, ok := typ.FieldByName(f.name)
			if !ok {
				return errors.AssertionFailedf("uniform %s has no field %s", typ.Name(), f.name)
			}
			if sf.Offset != f.offset {
				return errors.AssertionFailedf("uniform %s.%s at offset %d, shader expects %d",
					typ.Name(), f.name, sf.Offset, f.offset)
			}
		}
	}
	return nil
}
