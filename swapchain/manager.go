// Package swapchain keeps the swapchain, the offscreen attachments sized to
// it and the render graph built over them valid as one group.
package swapchain

import (
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// ErrExtentUnsupported is returned by Recreate when the surface cannot take
// a swapchain right now, typically while the window is minimized or being
// resized. The current group stays valid; try again next frame.
var ErrExtentUnsupported = errors.New("extent not supported by surface")

type Kind int

const (
	Depth Kind = iota
	Normal
	Colour
)

func (k Kind) String() string {
	switch k {
	case Depth:
		return "depth"
	case Normal:
		return "normal"
	case Colour:
		return "colour"
	}
	return "unknown"
}

type Resource interface {
	Extent() Extent
	Destroy()
}

type Chain interface {
	Resource
	ImageCount() int
}

type Attachments[A Resource] struct {
	Depth  A
	Normal A
	Colour A
}

// Backend creates the device objects of a group.
type Backend[C Chain, A Resource, G Resource] interface {
	Capabilities() (Capabilities, error)
	// CreateChain builds a swapchain. old is the chain being replaced, or
	// the zero value on first creation; it stays owned by the caller.
	CreateChain(extent Extent, images int, old C) (C, error)
	CreateAttachment(kind Kind, extent Extent) (A, error)
	CreateGraph(chain C, attachments Attachments[A]) (G, error)
}

// Targets is one consistent group: every member has Extent.
type Targets[C Chain, A Resource, G Resource] struct {
	Extent      Extent
	Chain       C
	Attachments Attachments[A]
	Graph       G
}

func (t *Targets[C, A, G]) resources() []namedResource {
	return []namedResource{
		{"swapchain", t.Chain},
		{Depth.String(), t.Attachments.Depth},
		{Normal.String(), t.Attachments.Normal},
		{Colour.String(), t.Attachments.Colour},
		{"render graph", t.Graph},
	}
}

type namedResource struct {
	name string
	res  Resource
}

// destroy releases the group in reverse dependency order.
func (t *Targets[C, A, G]) destroy() {
	t.Graph.Destroy()
	t.Attachments.Colour.Destroy()
	t.Attachments.Normal.Destroy()
	t.Attachments.Depth.Destroy()
	t.Chain.Destroy()
}

type Manager[C Chain, A Resource, G Resource] struct {
	backend Backend[C, A, G]
	logger  *log.Logger
	current *Targets[C, A, G]
}

func NewManager[C Chain, A Resource, G Resource](backend Backend[C, A, G], logger *log.Logger) *Manager[C, A, G] {
	return &Manager[C, A, G]{backend: backend, logger: logger}
}

func (m *Manager[C, A, G]) Current() *Targets[C, A, G] { return m.current }

// Create builds the first group.
func (m *Manager[C, A, G]) Create(requested Extent) (*Targets[C, A, G], error) {
	if m.current != nil {
		return nil, errors.AssertionFailedf("swapchain already created")
	}
	return m.Recreate(requested)
}

// Recreate replaces the whole group with one sized for requested. The
// caller must ensure no submitted work still uses the current group. On
// ErrExtentUnsupported nothing changes; any other error is fatal.
func (m *Manager[C, A, G]) Recreate(requested Extent) (*Targets[C, A, G], error) {
	caps, err := m.backend.Capabilities()
	if err != nil {
		return nil, errors.Wrap(err, "query surface capabilities")
	}

	extent := ChooseExtent(caps, requested)
	if !Supported(caps, extent) {
		m.logger.Debug("extent not supported", "requested", requested, "chosen", extent,
			"min", caps.Min, "max", caps.Max)
		return nil, errors.Wrapf(ErrExtentUnsupported, "extent %s", extent)
	}

	next, err := m.build(extent, ImageCount(caps))
	if err != nil {
		return nil, err
	}

	for _, r := range next.resources() {
		if got := r.res.Extent(); got != extent {
			next.destroy()
			return nil, errors.AssertionFailedf("%s is %s, group is %s", r.name, got, extent)
		}
	}

	if m.current != nil {
		m.current.destroy()
	}
	m.current = next

	m.logger.Debug("swapchain ready", "extent", extent, "images", next.Chain.ImageCount())
	return next, nil
}

func (m *Manager[C, A, G]) build(extent Extent, images int) (*Targets[C, A, G], error) {
	var old C
	if m.current != nil {
		old = m.current.Chain
	}

	chain, err := m.backend.CreateChain(extent, images, old)
	if err != nil {
		return nil, errors.Wrapf(err, "create swapchain %s", extent)
	}

	var made []Resource
	release := func() {
		for i := len(made) - 1; i >= 0; i-- {
			made[i].Destroy()
		}
		chain.Destroy()
	}

	var attachments Attachments[A]
	for _, a := range []struct {
		kind Kind
		dst  *A
	}{
		{Depth, &attachments.Depth},
		{Normal, &attachments.Normal},
		{Colour, &attachments.Colour},
	} {
		res, err := m.backend.CreateAttachment(a.kind, extent)
		if err != nil {
			release()
			return nil, errors.Wrapf(err, "create %s attachment %s", a.kind, extent)
		}
		*a.dst = res
		made = append(made, res)
	}

	graph, err := m.backend.CreateGraph(chain, attachments)
	if err != nil {
		release()
		return nil, errors.Wrap(err, "create render graph")
	}

	return &Targets[C, A, G]{
		Extent:      extent,
		Chain:       chain,
		Attachments: attachments,
		Graph:       graph,
	}, nil
}

// Destroy releases the current group.
func (m *Manager[C, A, G]) Destroy() {
	if m.current == nil {
		return
	}
	m.current.destroy()
	m.current = nil
}
