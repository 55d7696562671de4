// Package rendergraph describes the deferred render pass: two subpasses
// over four attachments, and the descriptor and pipeline state bound to
// each subpass. Everything here is plain create-info data; package gpu
// turns it into device objects.
package rendergraph

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// Attachment indices within the render pass and every framebuffer.
const (
	AttachmentFinal = iota
	AttachmentNormals
	AttachmentColour
	AttachmentDepth

	AttachmentCount
)

const (
	SubpassGeometry = 0
	SubpassLighting = 1
)

const (
	NormalFormat = core1_0.FormatR16G16B16A16SignedFloat
	ColourFormat = core1_0.FormatA2B10G10R10UnsignedNormalizedPacked
	DepthFormat  = core1_0.FormatD16UnsignedNormalized
)

// Target describes one of the offscreen images the geometry subpass writes.
type Target struct {
	Name    string
	Format  core1_0.Format
	Usage   core1_0.ImageUsageFlags
	Aspect  core1_0.ImageAspectFlags
	Feature core1_0.FormatFeatureFlags
}

// Targets lists the offscreen attachments in attachment order. They live
// only inside the render pass, so they are transient.
var Targets = map[int]Target{
	AttachmentNormals: {
		Name:    "normals",
		Format:  NormalFormat,
		Usage:   core1_0.ImageUsageColorAttachment | core1_0.ImageUsageInputAttachment | core1_0.ImageUsageTransientAttachment,
		Aspect:  core1_0.ImageAspectColor,
		Feature: core1_0.FormatFeatureColorAttachment,
	},
	AttachmentColour: {
		Name:    "colour",
		Format:  ColourFormat,
		Usage:   core1_0.ImageUsageColorAttachment | core1_0.ImageUsageInputAttachment | core1_0.ImageUsageTransientAttachment,
		Aspect:  core1_0.ImageAspectColor,
		Feature: core1_0.FormatFeatureColorAttachment,
	},
	AttachmentDepth: {
		Name:    "depth",
		Format:  DepthFormat,
		Usage:   core1_0.ImageUsageDepthStencilAttachment | core1_0.ImageUsageTransientAttachment,
		Aspect:  core1_0.ImageAspectDepth,
		Feature: core1_0.FormatFeatureDepthStencilAttachment,
	},
}

func transient(format core1_0.Format, final core1_0.ImageLayout) core1_0.AttachmentDescription {
	return core1_0.AttachmentDescription{
		Format:         format,
		Samples:        core1_0.Samples1,
		LoadOp:         core1_0.AttachmentLoadOpClear,
		StoreOp:        core1_0.AttachmentStoreOpDontCare,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  core1_0.ImageLayoutUndefined,
		FinalLayout:    final,
	}
}

// RenderPassInfo builds the deferred render pass for a swapchain of the
// given format.
//
// Subpass 0 writes normals and colour with depth testing. Subpass 1 reads
// both as input attachments and writes the swapchain image, which is the
// only attachment stored.
func RenderPassInfo(swapchainFormat core1_0.Format) core1_0.RenderPassCreateInfo {
	return core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			AttachmentFinal: {
				Format:         swapchainFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
			AttachmentNormals: transient(NormalFormat, core1_0.ImageLayoutColorAttachmentOptimal),
			AttachmentColour:  transient(ColourFormat, core1_0.ImageLayoutColorAttachmentOptimal),
			AttachmentDepth:   transient(DepthFormat, core1_0.ImageLayoutDepthStencilAttachmentOptimal),
		},
		Subpasses: []core1_0.SubpassDescription{
			SubpassGeometry: {
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{Attachment: AttachmentNormals, Layout: core1_0.ImageLayoutColorAttachmentOptimal},
					{Attachment: AttachmentColour, Layout: core1_0.ImageLayoutColorAttachmentOptimal},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: AttachmentDepth,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
			SubpassLighting: {
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				InputAttachments: []core1_0.AttachmentReference{
					{Attachment: AttachmentNormals, Layout: core1_0.ImageLayoutShaderReadOnlyOptimal},
					{Attachment: AttachmentColour, Layout: core1_0.ImageLayoutShaderReadOnlyOptimal},
				},
				ColorAttachments: []core1_0.AttachmentReference{
					{Attachment: AttachmentFinal, Layout: core1_0.ImageLayoutColorAttachmentOptimal},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: SubpassGeometry,

				// The offscreen attachments are shared by every frame, so the
				// previous frame's writes and input reads must finish first.
				SrcStageMask: core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests |
					core1_0.PipelineStageLateFragmentTests | core1_0.PipelineStageFragmentShader,
				SrcAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,

				DstStageMask: core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests |
					core1_0.PipelineStageLateFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentRead |
					core1_0.AccessDepthStencilAttachmentWrite,
			},
			{
				SrcSubpass: SubpassGeometry,
				DstSubpass: SubpassLighting,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: core1_0.AccessColorAttachmentWrite,

				DstStageMask:  core1_0.PipelineStageFragmentShader,
				DstAccessMask: core1_0.AccessInputAttachmentRead,

				DependencyFlags: core1_0.DependencyByRegion,
			},
		},
	}
}

// ClearValues returns one clear value per attachment, in attachment order.
// final is the colour the swapchain image starts from; depth clears to the
// far plane.
func ClearValues(final [4]float32) []core1_0.ClearValue {
	return []core1_0.ClearValue{
		AttachmentFinal:   core1_0.ClearValueFloat(final),
		AttachmentNormals: core1_0.ClearValueFloat{0, 0, 0, 1},
		AttachmentColour:  core1_0.ClearValueFloat{0, 0, 0, 1},
		AttachmentDepth:   core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
	}
}
