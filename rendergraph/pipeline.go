package rendergraph

import (
	"unsafe"

	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/deferred/scene"
)

// Lighting descriptor set bindings.
const (
	LightingNormals = iota
	LightingColour
	LightingViewProjection
	LightingLight
	LightingCamera
)

// GeometryViewProjection is the only binding of the geometry set.
const GeometryViewProjection = 0

func GeometryBindings() []core1_0.DescriptorSetLayoutBinding {
	return []core1_0.DescriptorSetLayoutBinding{
		{
			Binding:         GeometryViewProjection,
			DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      core1_0.StageVertex,
		},
	}
}

func LightingBindings() []core1_0.DescriptorSetLayoutBinding {
	return []core1_0.DescriptorSetLayoutBinding{
		{
			Binding:         LightingNormals,
			DescriptorType:  core1_0.DescriptorTypeInputAttachment,
			DescriptorCount: 1,
			StageFlags:      core1_0.StageFragment,
		},
		{
			Binding:         LightingColour,
			DescriptorType:  core1_0.DescriptorTypeInputAttachment,
			DescriptorCount: 1,
			StageFlags:      core1_0.StageFragment,
		},
		{
			Binding:         LightingViewProjection,
			DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      core1_0.StageVertex,
		},
		{
			Binding:         LightingLight,
			DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      core1_0.StageFragment,
		},
		{
			Binding:         LightingCamera,
			DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      core1_0.StageFragment,
		},
	}
}

// PoolSizes is what a descriptor pool needs to hold sets for frames frames.
func PoolSizes(frames int) []core1_0.DescriptorPoolSize {
	counts := map[core1_0.DescriptorType]int{}
	for _, b := range append(GeometryBindings(), LightingBindings()...) {
		counts[b.DescriptorType] += b.DescriptorCount
	}

	return []core1_0.DescriptorPoolSize{
		{
			Type:            core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: counts[core1_0.DescriptorTypeUniformBuffer] * frames,
		},
		{
			Type:            core1_0.DescriptorTypeInputAttachment,
			DescriptorCount: counts[core1_0.DescriptorTypeInputAttachment] * frames,
		},
	}
}

func vertexInput() *core1_0.PipelineVertexInputStateCreateInfo {
	v := scene.Vertex{}
	return &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions: []core1_0.VertexInputBindingDescription{
			{
				Binding:   0,
				Stride:    int(unsafe.Sizeof(v)),
				InputRate: core1_0.VertexInputRateVertex,
			},
		},
		VertexAttributeDescriptions: []core1_0.VertexInputAttributeDescription{
			{
				Binding:  0,
				Location: 0,
				Format:   core1_0.FormatR32G32B32SignedFloat,
				Offset:   int(unsafe.Offsetof(v.Position)),
			},
			{
				Binding:  0,
				Location: 1,
				Format:   core1_0.FormatR32G32B32SignedFloat,
				Offset:   int(unsafe.Offsetof(v.Normal)),
			},
		},
	}
}

// Shaders is one vertex and fragment module pair.
type Shaders struct {
	Vertex   core1_0.ShaderModule
	Fragment core1_0.ShaderModule
}

func (s Shaders) stages() []core1_0.PipelineShaderStageCreateInfo {
	return []core1_0.PipelineShaderStageCreateInfo{
		{
			Stage:  core1_0.StageVertex,
			Module: s.Vertex,
			Name:   "main",
		},
		{
			Stage:  core1_0.StageFragment,
			Module: s.Fragment,
			Name:   "main",
		},
	}
}

func opaque(count int) *core1_0.PipelineColorBlendStateCreateInfo {
	attachments := make([]core1_0.PipelineColorBlendAttachmentState, count)
	for i := range attachments {
		attachments[i] = core1_0.PipelineColorBlendAttachmentState{
			BlendEnabled:   false,
			ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
		}
	}

	return &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,
		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments:    attachments,
	}
}

// Pipeline holds what a subpass pipeline is built from.
type Pipeline struct {
	Shaders    Shaders
	Layout     core1_0.PipelineLayout
	RenderPass core1_0.RenderPass
	Extent     core1_0.Extent2D
}

func (p Pipeline) base(subpass int) core1_0.GraphicsPipelineCreateInfo {
	return core1_0.GraphicsPipelineCreateInfo{
		Stages:           p.Shaders.stages(),
		VertexInputState: vertexInput(),
		InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
			Topology:               core1_0.PrimitiveTopologyTriangleList,
			PrimitiveRestartEnable: false,
		},
		ViewportState: &core1_0.PipelineViewportStateCreateInfo{
			Viewports: []core1_0.Viewport{
				{
					X:        0,
					Y:        0,
					Width:    float32(p.Extent.Width),
					Height:   float32(p.Extent.Height),
					MinDepth: 0,
					MaxDepth: 1,
				},
			},
			Scissors: []core1_0.Rect2D{
				{
					Offset: core1_0.Offset2D{X: 0, Y: 0},
					Extent: p.Extent,
				},
			},
		},
		RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
			DepthClampEnable:        false,
			RasterizerDiscardEnable: false,

			PolygonMode: core1_0.PolygonModeFill,
			CullMode:    core1_0.CullModeBack,
			FrontFace:   core1_0.FrontFaceCounterClockwise,

			DepthBiasEnable: false,

			LineWidth: 1.0,
		},
		MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
			SampleShadingEnable:  false,
			RasterizationSamples: core1_0.Samples1,
			MinSampleShading:     1.0,
		},
		Layout:            p.Layout,
		RenderPass:        p.RenderPass,
		Subpass:           subpass,
		BasePipelineIndex: -1,
	}
}

// Geometry writes normals and colour with depth testing.
func (p Pipeline) Geometry() core1_0.GraphicsPipelineCreateInfo {
	info := p.base(SubpassGeometry)
	info.DepthStencilState = &core1_0.PipelineDepthStencilStateCreateInfo{
		DepthTestEnable:  true,
		DepthWriteEnable: true,
		DepthCompareOp:   core1_0.CompareOpLess,
	}
	info.ColorBlendState = opaque(2)
	return info
}

// Lighting redraws the same geometry and shades it from the input
// attachments. It has no depth attachment.
func (p Pipeline) Lighting() core1_0.GraphicsPipelineCreateInfo {
	info := p.base(SubpassLighting)
	info.ColorBlendState = opaque(1)
	return info
}
