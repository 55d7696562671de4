package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/deferred/rendergraph"
	"github.com/vkngwrapper/deferred/swapchain"
)

// Graph is the render pass, a framebuffer per swapchain image and the
// pipeline of each subpass. Pipelines bake the viewport, so the whole
// graph is rebuilt with the swapchain.
type Graph struct {
	driver core1_0.DeviceDriver

	extent       swapchain.Extent
	renderPass   core1_0.RenderPass
	framebuffers []core1_0.Framebuffer
	geometry     core1_0.Pipeline
	lighting     core1_0.Pipeline
}

func (g *Graph) Extent() swapchain.Extent                  { return g.extent }
func (g *Graph) RenderPass() core1_0.RenderPass            { return g.renderPass }
func (g *Graph) Framebuffer(image int) core1_0.Framebuffer { return g.framebuffers[image] }
func (g *Graph) GeometryPipeline() core1_0.Pipeline        { return g.geometry }
func (g *Graph) LightingPipeline() core1_0.Pipeline        { return g.lighting }

func (b *Backend) CreateGraph(chain *Chain, attachments swapchain.Attachments[*Attachment]) (*Graph, error) {
	d := b.device
	g := &Graph{driver: d.driver, extent: chain.Extent()}

	var err error
	g.renderPass, _, err = d.driver.CreateRenderPass(nil, rendergraph.RenderPassInfo(chain.Format()))
	if err != nil {
		return nil, errors.Wrap(err, "create render pass")
	}

	extent := fromExtent(g.extent)
	for i := 0; i < chain.ImageCount(); i++ {
		views := make([]core1_0.ImageView, rendergraph.AttachmentCount)
		views[rendergraph.AttachmentFinal] = chain.View(i)
		views[rendergraph.AttachmentNormals] = attachments.Normal.View()
		views[rendergraph.AttachmentColour] = attachments.Colour.View()
		views[rendergraph.AttachmentDepth] = attachments.Depth.View()

		framebuffer, _, err := d.driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  g.renderPass,
			Layers:      1,
			Attachments: views,
			Width:       extent.Width,
			Height:      extent.Height,
		})
		if err != nil {
			g.Destroy()
			return nil, errors.Wrapf(err, "create framebuffer %d", i)
		}
		g.framebuffers = append(g.framebuffers, framebuffer)
	}

	geometry := rendergraph.Pipeline{
		Shaders:    b.shaders.Geometry,
		Layout:     b.layouts.GeometryPipeline,
		RenderPass: g.renderPass,
		Extent:     extent,
	}
	lighting := geometry
	lighting.Shaders = b.shaders.Lighting
	lighting.Layout = b.layouts.LightingPipeline

	pipelines, _, err := d.driver.CreateGraphicsPipelines(nil, nil, geometry.Geometry(), lighting.Lighting())
	if err != nil {
		g.Destroy()
		return nil, errors.Wrap(err, "create pipelines")
	}
	g.geometry = pipelines[0]
	g.lighting = pipelines[1]

	return g, nil
}

func (g *Graph) Destroy() {
	if g.lighting.Initialized() {
		g.driver.DestroyPipeline(g.lighting, nil)
		g.lighting = core1_0.Pipeline{}
	}
	if g.geometry.Initialized() {
		g.driver.DestroyPipeline(g.geometry, nil)
		g.geometry = core1_0.Pipeline{}
	}

	for _, framebuffer := range g.framebuffers {
		g.driver.DestroyFramebuffer(framebuffer, nil)
	}
	g.framebuffers = nil

	if g.renderPass.Initialized() {
		g.driver.DestroyRenderPass(g.renderPass, nil)
		g.renderPass = core1_0.RenderPass{}
	}
}
