package scene

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

const epsilon = 1e-5

// approxEqual compares componentwise with an absolute tolerance. mgl32's
// threshold comparison is far stricter when the expected value is zero.
func approxEqual(got, want mgl32.Vec3) bool {
	for i := range got {
		if mgl32.Abs(got[i]-want[i]) >= epsilon {
			return false
		}
	}
	return true
}

func triangle() *Model {
	return NewModel([]Vertex{
		{Position: mgl32.Vec3{0, 0, 0}, Normal: mgl32.Vec3{0, 0, 1}},
		{Position: mgl32.Vec3{1, 0, 0}, Normal: mgl32.Vec3{0, 0, 1}},
		{Position: mgl32.Vec3{0, 1, 0}, Normal: mgl32.Vec3{0, 0, 1}},
	}, []uint32{0, 1, 2})
}

func TestFlattenCounts(t *testing.T) {
	tests := []struct {
		name   string
		models []*Model
	}{
		{name: "single cube", models: []*Model{NewCube()}},
		{name: "two cubes", models: []*Model{NewCube(), NewCube()}},
		{name: "mixed", models: []*Model{triangle(), NewCube(), triangle(), NewCube()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Flatten(tt.models)
			if err != nil {
				t.Fatalf("Flatten: %v", err)
			}

			var wantVertices, wantIndices int
			for _, m := range tt.models {
				wantVertices += m.VertexCount()
				wantIndices += m.IndexCount()
			}
			if len(c.Vertices()) != wantVertices {
				t.Errorf("vertex count = %d, want %d", len(c.Vertices()), wantVertices)
			}
			if len(c.Indices()) != wantIndices {
				t.Errorf("index count = %d, want %d", len(c.Indices()), wantIndices)
			}

			for i, idx := range c.Indices() {
				if int(idx) >= len(c.Vertices()) {
					t.Fatalf("index %d = %d dangles past %d vertices", i, idx, len(c.Vertices()))
				}
			}

			var vertexBase, indexBase int
			for k, m := range tt.models {
				for j, idx := range m.indices {
					got := c.Indices()[indexBase+j]
					if int(got) != int(idx)+vertexBase {
						t.Fatalf("model %d index %d = %d, want %d", k, j, got, int(idx)+vertexBase)
					}
				}
				vertexBase += m.VertexCount()
				indexBase += m.IndexCount()
			}
		})
	}
}

func TestFlattenTwoIdentityCubes(t *testing.T) {
	c, err := Flatten([]*Model{NewCube(), NewCube()})
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}

	if len(c.Vertices()) != 48 || len(c.Indices()) != 72 {
		t.Fatalf("got %d vertices and %d indices, want 48 and 72", len(c.Vertices()), len(c.Indices()))
	}

	for i, idx := range c.Indices()[36:] {
		if idx < 24 || idx >= 48 {
			t.Errorf("second cube index %d = %d, want within [24, 48)", i, idx)
		}
	}
}

func TestFlattenIdentityLeavesGeometry(t *testing.T) {
	cube := NewCube()
	c, err := Flatten([]*Model{cube})
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}

	for i, v := range c.Vertices() {
		want := cubeVertices[i]
		if !approxEqual(v.Position, want.Position) {
			t.Errorf("vertex %d position = %v, want %v", i, v.Position, want.Position)
		}
		if !approxEqual(v.Normal, want.Normal) {
			t.Errorf("vertex %d normal = %v, want %v", i, v.Normal, want.Normal)
		}
	}
}

func TestFlattenTranslationMovesPositionsOnly(t *testing.T) {
	offset := mgl32.Vec3{3, -2, 7}
	cube := NewCube()
	cube.SetTransform(mgl32.Translate3D(offset.X(), offset.Y(), offset.Z()))

	c, err := Flatten([]*Model{cube})
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}

	for i, v := range c.Vertices() {
		want := cubeVertices[i]
		if !approxEqual(v.Position, want.Position.Add(offset)) {
			t.Errorf("vertex %d position = %v, want %v", i, v.Position, want.Position.Add(offset))
		}
		if !approxEqual(v.Normal, want.Normal) {
			t.Errorf("vertex %d normal = %v, want unchanged %v", i, v.Normal, want.Normal)
		}
	}
}

func TestFlattenRotationTurnsNormals(t *testing.T) {
	tri := triangle()
	tri.SetTransform(mgl32.Translate3D(5, 0, 0).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(90))))

	c, err := Flatten([]*Model{tri})
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}

	want := mgl32.Vec3{1, 0, 0}
	for i, v := range c.Vertices() {
		if !approxEqual(v.Normal, want) {
			t.Errorf("vertex %d normal = %v, want %v", i, v.Normal, want)
		}
	}
}

func TestFlattenDoesNotAliasModels(t *testing.T) {
	cube := NewCube()
	c, err := Flatten([]*Model{cube})
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}

	c.Vertices()[0].Position = mgl32.Vec3{100, 100, 100}
	c.Indices()[0] = 99

	if cube.vertices[0].Position == (mgl32.Vec3{100, 100, 100}) || cube.indices[0] == 99 {
		t.Fatal("flattened output aliases model storage")
	}
}

func TestFlattenInvalidGeometryIsAssertion(t *testing.T) {
	tests := []struct {
		name   string
		models []*Model
	}{
		{name: "no models", models: nil},
		{name: "empty model", models: []*Model{NewModel(nil, nil)}},
		{name: "vertices without indices", models: []*Model{NewModel(cubeVertices, nil)}},
		{name: "dangling index", models: []*Model{NewCube(), NewModel(cubeVertices[:1], []uint32{0, 5, 9})}},
		{name: "partial triangle", models: []*Model{NewModel(cubeVertices[:3], []uint32{0, 1, 2, 0})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Flatten(tt.models)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.HasAssertionFailure(err) {
				t.Errorf("error %v is not an assertion failure", err)
			}
		})
	}
}
