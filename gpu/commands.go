package gpu

import (
	"github.com/vkngwrapper/core/v3/core1_0"
)

// commandBuffer records into one primary command buffer.
type commandBuffer struct {
	driver core1_0.DeviceDriver
	buffer core1_0.CommandBuffer
}

func (c commandBuffer) Begin() error {
	_, err := c.driver.BeginCommandBuffer(c.buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	return err
}

func (c commandBuffer) BeginRenderPass(renderPass core1_0.RenderPass, framebuffer core1_0.Framebuffer, area core1_0.Rect2D, clears []core1_0.ClearValue) error {
	return c.driver.CmdBeginRenderPass(c.buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  renderPass,
			Framebuffer: framebuffer,
			RenderArea:  area,
			ClearValues: clears,
		})
}

func (c commandBuffer) BindPipeline(pipeline core1_0.Pipeline) {
	c.driver.CmdBindPipeline(c.buffer, core1_0.PipelineBindPointGraphics, pipeline)
}

func (c commandBuffer) BindDescriptorSets(layout core1_0.PipelineLayout, sets ...core1_0.DescriptorSet) {
	c.driver.CmdBindDescriptorSets(c.buffer, core1_0.PipelineBindPointGraphics, layout, 0, sets, nil)
}

func (c commandBuffer) BindVertexBuffer(buffer core1_0.Buffer) {
	c.driver.CmdBindVertexBuffers(c.buffer, 0, []core1_0.Buffer{buffer}, []int{0})
}

func (c commandBuffer) BindIndexBuffer(buffer core1_0.Buffer) {
	c.driver.CmdBindIndexBuffer(c.buffer, buffer, 0, core1_0.IndexTypeUInt32)
}

func (c commandBuffer) DrawIndexed(indexCount int) {
	c.driver.CmdDrawIndexed(c.buffer, indexCount, 1, 0, 0, 0)
}

func (c commandBuffer) NextSubpass() {
	c.driver.CmdNextSubpass(c.buffer, core1_0.SubpassContentsInline)
}

func (c commandBuffer) EndRenderPass() {
	c.driver.CmdEndRenderPass(c.buffer)
}

func (c commandBuffer) End() error {
	_, err := c.driver.EndCommandBuffer(c.buffer)
	return err
}
