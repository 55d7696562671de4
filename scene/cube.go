package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Unit cube centred on the origin, four vertices per face so every face
// carries its own normal. Y points down to match the view's up vector.
var cubeVertices = []Vertex{
	// front
	{Position: mgl32.Vec3{-0.5, 0.5, -0.5}, Normal: mgl32.Vec3{0, 0, -1}},
	{Position: mgl32.Vec3{0.5, -0.5, -0.5}, Normal: mgl32.Vec3{0, 0, -1}},
	{Position: mgl32.Vec3{0.5, 0.5, -0.5}, Normal: mgl32.Vec3{0, 0, -1}},
	{Position: mgl32.Vec3{-0.5, -0.5, -0.5}, Normal: mgl32.Vec3{0, 0, -1}},
	// back
	{Position: mgl32.Vec3{-0.5, 0.5, 0.5}, Normal: mgl32.Vec3{0, 0, 1}},
	{Position: mgl32.Vec3{0.5, -0.5, 0.5}, Normal: mgl32.Vec3{0, 0, 1}},
	{Position: mgl32.Vec3{-0.5, -0.5, 0.5}, Normal: mgl32.Vec3{0, 0, 1}},
	{Position: mgl32.Vec3{0.5, 0.5, 0.5}, Normal: mgl32.Vec3{0, 0, 1}},
	// left
	{Position: mgl32.Vec3{-0.5, 0.5, -0.5}, Normal: mgl32.Vec3{-1, 0, 0}},
	{Position: mgl32.Vec3{-0.5, -0.5, 0.5}, Normal: mgl32.Vec3{-1, 0, 0}},
	{Position: mgl32.Vec3{-0.5, -0.5, -0.5}, Normal: mgl32.Vec3{-1, 0, 0}},
	{Position: mgl32.Vec3{-0.5, 0.5, 0.5}, Normal: mgl32.Vec3{-1, 0, 0}},
	// right
	{Position: mgl32.Vec3{0.5, 0.5, -0.5}, Normal: mgl32.Vec3{1, 0, 0}},
	{Position: mgl32.Vec3{0.5, -0.5, 0.5}, Normal: mgl32.Vec3{1, 0, 0}},
	{Position: mgl32.Vec3{0.5, 0.5, 0.5}, Normal: mgl32.Vec3{1, 0, 0}},
	{Position: mgl32.Vec3{0.5, -0.5, -0.5}, Normal: mgl32.Vec3{1, 0, 0}},
	// top
	{Position: mgl32.Vec3{-0.5, -0.5, -0.5}, Normal: mgl32.Vec3{0, -1, 0}},
	{Position: mgl32.Vec3{0.5, -0.5, 0.5}, Normal: mgl32.Vec3{0, -1, 0}},
	{Position: mgl32.Vec3{0.5, -0.5, -0.5}, Normal: mgl32.Vec3{0, -1, 0}},
	{Position: mgl32.Vec3{-0.5, -0.5, 0.5}, Normal: mgl32.Vec3{0, -1, 0}},
	// bottom
	{Position: mgl32.Vec3{-0.5, 0.5, -0.5}, Normal: mgl32.Vec3{0, 1, 0}},
	{Position: mgl32.Vec3{0.5, 0.5, 0.5}, Normal: mgl32.Vec3{0, 1, 0}},
	{Position: mgl32.Vec3{-0.5, 0.5, 0.5}, Normal: mgl32.Vec3{0, 1, 0}},
	{Position: mgl32.Vec3{0.5, 0.5, -0.5}, Normal: mgl32.Vec3{0, 1, 0}},
}

// SquareIndices triangulates a list of quads. Every four vertices a, b, c,
// d become the triangles (a, b, c) and (d, b, a). It panics when the count
// is not a multiple of four.
func SquareIndices(vertexCount int) []uint32 {
	if vertexCount%4 != 0 {
		panic(fmt.Sprintf("scene: %d vertices do not form whole quads", vertexCount))
	}

	order := [6]uint32{0, 1, 2, 3, 1, 0}
	indices := make([]uint32, 0, vertexCount/4*6)
	for face := 0; face < vertexCount/4; face++ {
		base := uint32(face * 4)
		for _, o := range order {
			indices = append(indices, base+o)
		}
	}
	return indices
}

func NewCube() *Model {
	return NewModel(cubeVertices, SquareIndices(len(cubeVertices)))
}
