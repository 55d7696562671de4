// Package scene holds the mesh instances drawn each frame and merges them
// into a single vertex and index list.
package scene

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
}

// VertexSize is the stride of Vertex as uploaded to the device.
const VertexSize = int(unsafe.Sizeof(Vertex{}))

// Model is one transformable mesh instance. Its geometry is fixed at
// construction; only the transform changes.
type Model struct {
	ID uuid.UUID

	vertices  []Vertex
	indices   []uint32
	transform mgl32.Mat4
}

func NewModel(vertices []Vertex, indices []uint32) *Model {
	return &Model{
		ID:        uuid.New(),
		vertices:  append([]Vertex(nil), vertices...),
		indices:   append([]uint32(nil), indices...),
		transform: mgl32.Ident4(),
	}
}

func (m *Model) VertexCount() int { return len(m.vertices) }
func (m *Model) IndexCount() int  { return len(m.indices) }

func (m *Model) Transform() mgl32.Mat4 { return m.transform }

func (m *Model) SetTransform(transform mgl32.Mat4) {
	m.transform = transform
}

// Scene is the arena of models owned by the frame loop. Models keep their
// insertion order, which is also their draw order.
type Scene struct {
	models []*Model
	byID   map[uuid.UUID]*Model
}

func New() *Scene {
	return &Scene{byID: make(map[uuid.UUID]*Model)}
}

func (s *Scene) Add(m *Model) uuid.UUID {
	s.models = append(s.models, m)
	s.byID[m.ID] = m
	return m.ID
}

func (s *Scene) Get(id uuid.UUID) (*Model, bool) {
	m, ok := s.byID[id]
	return m, ok
}

func (s *Scene) Models() []*Model {
	return s.models
}

func (s *Scene) Len() int { return len(s.models) }
