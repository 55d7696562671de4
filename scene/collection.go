package scene

import (
	"github.com/cockroachdb/errors"
)

// Collection is the merged, world-space geometry of a set of models for
// one frame. It owns its slices.
type Collection struct {
	vertices []Vertex
	indices  []uint32
}

func (c *Collection) Vertices() []Vertex { return c.vertices }
func (c *Collection) Indices() []uint32  { return c.indices }

// Flatten applies every model's transform to its vertices and appends the
// results in order. Each model's indices are offset by the number of
// vertices appended before it. An empty result, or a model whose indices
// do not form whole triangles over its own vertices, is a caller bug.
func Flatten(models []*Model) (*Collection, error) {
	var vertexCount, indexCount int
	for k, m := range models {
		if err := m.validate(); err != nil {
			return nil, errors.Wrapf(err, "flatten: model %d", k)
		}
		vertexCount += len(m.vertices)
		indexCount += len(m.indices)
	}
	if vertexCount == 0 || indexCount == 0 {
		return nil, errors.AssertionFailedf("flatten: empty geometry (%d models, %d vertices, %d indices)",
			len(models), vertexCount, indexCount)
	}

	c := &Collection{
		vertices: make([]Vertex, 0, vertexCount),
		indices:  make([]uint32, 0, indexCount),
	}

	for _, m := range models {
		base := uint32(len(c.vertices))
		linear := m.transform.Mat3()

		for _, v := range m.vertices {
			c.vertices = append(c.vertices, Vertex{
				Position: m.transform.Mul4x1(v.Position.Vec4(1)).Vec3(),
				Normal:   linear.Mul3x1(v.Normal),
			})
		}

		for _, i := range m.indices {
			c.indices = append(c.indices, base+i)
		}
	}

	return c, nil
}

func (m *Model) validate() error {
	if len(m.indices)%3 != 0 {
		return errors.AssertionFailedf("%d indices do not form whole triangles", len(m.indices))
	}
	for i, idx := range m.indices {
		if int(idx) >= len(m.vertices) {
			return errors.AssertionFailedf("index %d = %d dangles past %d vertices", i, idx, len(m.vertices))
		}
	}
	return nil
}
