package gpu

import (
	"bytes"
	"encoding/binary"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/deferred/frame"
	"github.com/vkngwrapper/deferred/record"
	"github.com/vkngwrapper/deferred/rendergraph"
	"github.com/vkngwrapper/deferred/scene"
	"github.com/vkngwrapper/deferred/uniforms"
)

// UniformHandle is a ring entry backed by a host buffer.
type UniformHandle = uniforms.Handle[*HostBuffer]

// FrameData is everything one frame uploads before recording.
type FrameData struct {
	Geometry       *scene.Collection
	ViewProjection UniformHandle
	Light          UniformHandle
	Camera         UniformHandle
	Clear          [4]float32
}

type fence struct {
	driver core1_0.DeviceDriver
	handle core1_0.Fence
}

func (f fence) Wait() error {
	_, err := f.driver.WaitForFences(true, common.NoTimeout, f.handle)
	return err
}

// imageFrame is what one swapchain image needs to be drawn. Only the
// frame that acquired the image touches it, and only once the image's
// previous submission has retired.
type imageFrame struct {
	commands       core1_0.CommandBuffer
	fence          core1_0.Fence
	acquired       core1_0.Semaphore
	renderFinished core1_0.Semaphore

	geometrySet core1_0.DescriptorSet
	lightingSet core1_0.DescriptorSet

	vertices *HostBuffer
	indices  *HostBuffer
}

// Presenter implements frame.Queue for the current swapchain group and
// prepares each acquired image's resources.
type Presenter struct {
	device  *Device
	layouts *Layouts
	logger  *log.Logger

	group  *Group
	pool   core1_0.DescriptorPool
	frames []imageFrame
	// spare is signalled by the next acquire. Submit swaps it with the
	// acquired image's semaphore, whose last waiter has retired by then.
	spare core1_0.Semaphore
}

var _ frame.Queue = (*Presenter)(nil)

func NewPresenter(device *Device, layouts *Layouts, logger *log.Logger) *Presenter {
	return &Presenter{
		device:  device,
		layouts: layouts,
		logger:  logger.WithPrefix("presenter"),
	}
}

// Rebuild replaces every per-image resource for group. No submission may
// be outstanding.
func (p *Presenter) Rebuild(group *Group) error {
	p.destroyFrames()
	p.group = group

	d := p.device
	count := group.Chain.ImageCount()

	var err error
	p.spare, _, err = d.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return errors.Wrap(err, "create acquire semaphore")
	}

	buffers, _, err := d.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        d.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return errors.Wrap(err, "allocate command buffers")
	}

	p.frames = make([]imageFrame, count)
	for i := range p.frames {
		p.frames[i].commands = buffers[i]
	}

	for i := range p.frames {
		f := &p.frames[i]

		f.fence, _, err = d.driver.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			return errors.Wrap(err, "create fence")
		}

		f.acquired, _, err = d.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "create acquire semaphore")
		}

		f.renderFinished, _, err = d.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "create render semaphore")
		}
	}

	if err := p.createDescriptorSets(); err != nil {
		return err
	}

	p.logger.Debug("frame resources rebuilt", "images", count, "extent", group.Extent)
	return nil
}

func (p *Presenter) createDescriptorSets() error {
	d := p.device
	count := len(p.frames)

	var err error
	p.pool, _, err = d.driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   2 * count,
		PoolSizes: rendergraph.PoolSizes(count),
	})
	if err != nil {
		return errors.Wrap(err, "create descriptor pool")
	}

	allocate := func(layout core1_0.DescriptorSetLayout) ([]core1_0.DescriptorSet, error) {
		layouts := make([]core1_0.DescriptorSetLayout, count)
		for i := range layouts {
			layouts[i] = layout
		}
		sets, _, err := d.driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
			DescriptorPool: p.pool,
			SetLayouts:     layouts,
		})
		return sets, err
	}

	geometry, err := allocate(p.layouts.GeometrySet)
	if err != nil {
		return errors.Wrap(err, "allocate geometry descriptor sets")
	}
	lighting, err := allocate(p.layouts.LightingSet)
	if err != nil {
		return errors.Wrap(err, "allocate lighting descriptor sets")
	}

	// The input attachments are fixed for the life of the group; uniforms
	// are written per frame.
	normals := p.group.Attachments.Normal.View()
	colour := p.group.Attachments.Colour.View()

	for i := range p.frames {
		p.frames[i].geometrySet = geometry[i]
		p.frames[i].lightingSet = lighting[i]

		err := d.driver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
			inputAttachment(lighting[i], rendergraph.LightingNormals, normals),
			inputAttachment(lighting[i], rendergraph.LightingColour, colour),
		}, nil)
		if err != nil {
			return errors.Wrap(err, "write input attachment descriptors")
		}
	}

	return nil
}

func inputAttachment(set core1_0.DescriptorSet, binding int, view core1_0.ImageView) core1_0.WriteDescriptorSet {
	return core1_0.WriteDescriptorSet{
		DstSet:          set,
		DstBinding:      binding,
		DstArrayElement: 0,

		DescriptorType: core1_0.DescriptorTypeInputAttachment,

		ImageInfo: []core1_0.DescriptorImageInfo{
			{
				ImageView:   view,
				ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
			},
		},
	}
}

func uniformBuffer(set core1_0.DescriptorSet, binding int, h UniformHandle) core1_0.WriteDescriptorSet {
	return core1_0.WriteDescriptorSet{
		DstSet:          set,
		DstBinding:      binding,
		DstArrayElement: 0,

		DescriptorType: core1_0.DescriptorTypeUniformBuffer,

		BufferInfo: []core1_0.DescriptorBufferInfo{
			{
				Buffer: h.Block.Buffer(),
				Offset: h.Offset,
				Range:  h.Range,
			},
		},
	}
}

// Prepare uploads data into image's resources and records its command
// buffer.
func (p *Presenter) Prepare(image int, data FrameData) error {
	f := &p.frames[image]
	d := p.device

	vertices := data.Geometry.Vertices()
	indices := data.Geometry.Indices()

	var err error
	f.vertices, err = p.upload(f.vertices, core1_0.BufferUsageVertexBuffer, vertices, len(vertices)*scene.VertexSize)
	if err != nil {
		return errors.Wrap(err, "upload vertices")
	}
	f.indices, err = p.upload(f.indices, core1_0.BufferUsageIndexBuffer, indices, len(indices)*4)
	if err != nil {
		return errors.Wrap(err, "upload indices")
	}

	err = d.driver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		uniformBuffer(f.geometrySet, rendergraph.GeometryViewProjection, data.ViewProjection),
		uniformBuffer(f.lightingSet, rendergraph.LightingViewProjection, data.ViewProjection),
		uniformBuffer(f.lightingSet, rendergraph.LightingLight, data.Light),
		uniformBuffer(f.lightingSet, rendergraph.LightingCamera, data.Camera),
	}, nil)
	if err != nil {
		return errors.Wrap(err, "write uniform descriptors")
	}

	graph := p.group.Graph
	return record.Record(commandBuffer{driver: d.driver, buffer: f.commands}, record.Frame{
		RenderPass:  graph.RenderPass(),
		Framebuffer: graph.Framebuffer(image),
		Extent:      fromExtent(p.group.Extent),
		Clear:       data.Clear,
		Geometry: record.Stage{
			Pipeline: graph.GeometryPipeline(),
			Layout:   p.layouts.GeometryPipeline,
			Set:      f.geometrySet,
		},
		Lighting: record.Stage{
			Pipeline: graph.LightingPipeline(),
			Layout:   p.layouts.LightingPipeline,
			Set:      f.lightingSet,
		},
		Vertices:   f.vertices.Buffer(),
		Indices:    f.indices.Buffer(),
		IndexCount: len(indices),
	})
}

// upload writes data into buf, replacing buf with a larger one when it is
// too small.
func (p *Presenter) upload(buf *HostBuffer, usage core1_0.BufferUsageFlags, data any, size int) (*HostBuffer, error) {
	if buf == nil || buf.Size() < size {
		if buf != nil {
			buf.Destroy()
		}
		var err error
		buf, err = p.device.NewHostBuffer(size, usage)
		if err != nil {
			return nil, err
		}
	}

	encoded := &bytes.Buffer{}
	if err := binary.Write(encoded, common.ByteOrder, data); err != nil {
		return buf, err
	}
	return buf, buf.Write(0, encoded.Bytes())
}

func (p *Presenter) Acquire() (frame.Acquired, error) {
	ext := p.device.swapchainExt
	image, res, err := ext.AcquireNextImage(p.group.Chain.handle, common.NoTimeout, &p.spare, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return frame.Acquired{}, frame.ErrOutOfDate
	} else if err != nil {
		return frame.Acquired{}, err
	}

	return frame.Acquired{Image: image, Suboptimal: res == khr_swapchain.VKSuboptimal}, nil
}

// Submit queues image's command buffer. after needs no explicit wait:
// every frame goes to the same queue, and the render pass's external
// dependency makes earlier frames' attachment writes and input reads
// complete before this frame clears the shared attachments.
func (p *Presenter) Submit(image int, after frame.Fence) (frame.Fence, error) {
	d := p.device
	f := &p.frames[image]

	f.acquired, p.spare = p.spare, f.acquired

	if _, err := d.driver.ResetFences(f.fence); err != nil {
		return nil, errors.Wrap(err, "reset fence")
	}

	_, err := d.driver.QueueSubmit(d.graphicsQueue, &f.fence,
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{f.acquired},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{f.commands},
			SignalSemaphores: []core1_0.Semaphore{f.renderFinished},
		},
	)
	if err != nil {
		return nil, err
	}

	return fence{driver: d.driver, handle: f.fence}, nil
}

func (p *Presenter) Present(image int) error {
	d := p.device
	res, err := d.swapchainExt.QueuePresent(d.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{p.frames[image].renderFinished},
		Swapchains:     []khr_swapchain.Swapchain{p.group.Chain.handle},
		ImageIndices:   []int{image},
	})
	switch {
	case res == khr_swapchain.VKErrorOutOfDate:
		return frame.ErrOutOfDate
	case err != nil:
		return err
	case res == khr_swapchain.VKSuboptimal:
		return frame.ErrSuboptimal
	}
	return nil
}

func (p *Presenter) destroyFrames() {
	d := p.device

	if len(p.frames) > 0 {
		buffers := make([]core1_0.CommandBuffer, 0, len(p.frames))
		for _, f := range p.frames {
			if f.commands.Initialized() {
				buffers = append(buffers, f.commands)
			}
		}
		if len(buffers) > 0 {
			d.driver.FreeCommandBuffers(buffers...)
		}
	}

	for _, f := range p.frames {
		if f.fence.Initialized() {
			d.driver.DestroyFence(f.fence, nil)
		}
		if f.acquired.Initialized() {
			d.driver.DestroySemaphore(f.acquired, nil)
		}
		if f.renderFinished.Initialized() {
			d.driver.DestroySemaphore(f.renderFinished, nil)
		}
		if f.vertices != nil {
			f.vertices.Destroy()
		}
		if f.indices != nil {
			f.indices.Destroy()
		}
	}
	p.frames = nil

	if p.spare.Initialized() {
		d.driver.DestroySemaphore(p.spare, nil)
		p.spare = core1_0.Semaphore{}
	}

	// Destroying the pool frees its sets.
	if p.pool.Initialized() {
		d.driver.DestroyDescriptorPool(p.pool, nil)
		p.pool = core1_0.DescriptorPool{}
	}
}

// Destroy releases every per-image resource. No submission may be
// outstanding.
func (p *Presenter) Destroy() {
	p.destroyFrames()
	p.group = nil
}
