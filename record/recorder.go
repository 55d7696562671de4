// Package record emits the per-frame command sequence of the deferred
// render pass.
package record

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/deferred/rendergraph"
)

// Commands is the slice of a command buffer the recorder needs.
type Commands interface {
	Begin() error
	BeginRenderPass(renderPass core1_0.RenderPass, framebuffer core1_0.Framebuffer, area core1_0.Rect2D, clears []core1_0.ClearValue) error
	BindPipeline(pipeline core1_0.Pipeline)
	BindDescriptorSets(layout core1_0.PipelineLayout, sets ...core1_0.DescriptorSet)
	BindVertexBuffer(buffer core1_0.Buffer)
	BindIndexBuffer(buffer core1_0.Buffer)
	DrawIndexed(indexCount int)
	NextSubpass()
	EndRenderPass()
	End() error
}

// Stage is a subpass pipeline and the descriptor set it reads this frame.
type Stage struct {
	Pipeline core1_0.Pipeline
	Layout   core1_0.PipelineLayout
	Set      core1_0.DescriptorSet
}

type Frame struct {
	RenderPass  core1_0.RenderPass
	Framebuffer core1_0.Framebuffer
	Extent      core1_0.Extent2D
	Clear       [4]float32

	Geometry Stage
	Lighting Stage

	Vertices   core1_0.Buffer
	Indices    core1_0.Buffer
	IndexCount int
}

// Record writes one frame: the geometry subpass draws the merged scene
// into the offscreen targets, then the lighting subpass draws it again
// reading them. Vertex and index buffers stay bound across the subpass
// boundary.
func Record(cmds Commands, f Frame) error {
	if f.IndexCount <= 0 {
		return errors.AssertionFailedf("record: index count %d", f.IndexCount)
	}

	if err := cmds.Begin(); err != nil {
		return errors.Wrap(err, "begin command buffer")
	}

	area := core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: f.Extent,
	}
	err := cmds.BeginRenderPass(f.RenderPass, f.Framebuffer, area, rendergraph.ClearValues(f.Clear))
	if err != nil {
		return errors.Wrap(err, "begin render pass")
	}

	cmds.BindPipeline(f.Geometry.Pipeline)
	cmds.BindDescriptorSets(f.Geometry.Layout, f.Geometry.Set)
	cmds.BindVertexBuffer(f.Vertices)
	cmds.BindIndexBuffer(f.Indices)
	cmds.DrawIndexed(f.IndexCount)

	cmds.NextSubpass()

	cmds.BindPipeline(f.Lighting.Pipeline)
	cmds.BindDescriptorSets(f.Lighting.Layout, f.Lighting.Set)
	cmds.DrawIndexed(f.IndexCount)

	cmds.EndRenderPass()

	if err := cmds.End(); err != nil {
		return errors.Wrap(err, "end command buffer")
	}
	return nil
}
