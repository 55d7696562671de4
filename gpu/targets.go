package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/deferred/config"
	"github.com/vkngwrapper/deferred/rendergraph"
	"github.com/vkngwrapper/deferred/swapchain"
)

// Group is one swapchain with its attachments and render graph.
type Group = swapchain.Targets[*Chain, *Attachment, *Graph]

func ParsePresentMode(name string) khr_surface.PresentMode {
	if name == config.PresentModeMailbox {
		return khr_surface.PresentModeMailbox
	}
	return khr_surface.PresentModeFIFO
}

// Backend builds swapchain groups on a device.
type Backend struct {
	device      *Device
	presentMode khr_surface.PresentMode
	shaders     *ShaderSet
	layouts     *Layouts
}

func NewBackend(device *Device, presentMode khr_surface.PresentMode, shaders *ShaderSet, layouts *Layouts) *Backend {
	return &Backend{
		device:      device,
		presentMode: presentMode,
		shaders:     shaders,
		layouts:     layouts,
	}
}

func toExtent(e core1_0.Extent2D) swapchain.Extent {
	return swapchain.Extent{Width: e.Width, Height: e.Height}
}

func fromExtent(e swapchain.Extent) core1_0.Extent2D {
	return core1_0.Extent2D{Width: e.Width, Height: e.Height}
}

func (b *Backend) surfaceCapabilities() (*khr_surface.SurfaceCapabilities, error) {
	d := b.device
	caps, _, err := d.surfaceExt.GetPhysicalDeviceSurfaceCapabilities(d.surface, d.physical)
	return caps, err
}

func (b *Backend) Capabilities() (swapchain.Capabilities, error) {
	caps, err := b.surfaceCapabilities()
	if err != nil {
		return swapchain.Capabilities{}, err
	}

	return swapchain.Capabilities{
		Current:   toExtent(caps.CurrentExtent),
		Min:       toExtent(caps.MinImageExtent),
		Max:       toExtent(caps.MaxImageExtent),
		MinImages: caps.MinImageCount,
		MaxImages: caps.MaxImageCount,
	}, nil
}

func chooseSurfaceFormat(available []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range available {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return available[0]
}

func choosePresentMode(available []khr_surface.PresentMode, preferred khr_surface.PresentMode) khr_surface.PresentMode {
	for _, mode := range available {
		if mode == preferred {
			return mode
		}
	}

	return khr_surface.PresentModeFIFO
}

// Chain is a swapchain and a view of each of its images.
type Chain struct {
	driver core1_0.DeviceDriver
	ext    khr_swapchain.ExtensionDriver

	handle khr_swapchain.Swapchain
	format core1_0.Format
	extent swapchain.Extent
	images []core1_0.Image
	views  []core1_0.ImageView
}

func (c *Chain) Extent() swapchain.Extent     { return c.extent }
func (c *Chain) ImageCount() int              { return len(c.images) }
func (c *Chain) Format() core1_0.Format       { return c.format }
func (c *Chain) View(i int) core1_0.ImageView { return c.views[i] }

func (c *Chain) Destroy() {
	for _, view := range c.views {
		c.driver.DestroyImageView(view, nil)
	}
	c.views = nil

	if c.handle.Initialized() {
		c.ext.DestroySwapchain(c.handle, nil)
		c.handle = khr_swapchain.Swapchain{}
	}
}

func (b *Backend) CreateChain(extent swapchain.Extent, images int, old *Chain) (*Chain, error) {
	d := b.device

	caps, err := b.surfaceCapabilities()
	if err != nil {
		return nil, err
	}
	formats, _, err := d.surfaceExt.GetPhysicalDeviceSurfaceFormats(d.surface, d.physical)
	if err != nil {
		return nil, err
	}
	modes, _, err := d.surfaceExt.GetPhysicalDeviceSurfacePresentModes(d.surface, d.physical)
	if err != nil {
		return nil, err
	}

	surfaceFormat := chooseSurfaceFormat(formats)

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if *d.families.graphics != *d.families.present {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = append(queueFamilyIndices, *d.families.graphics, *d.families.present)
	}

	info := khr_swapchain.SwapchainCreateInfo{
		Surface: d.surface,

		MinImageCount:    images,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      fromExtent(extent),
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   caps.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    choosePresentMode(modes, b.presentMode),
		Clipped:        true,
	}
	if old != nil {
		info.OldSwapchain = old.handle
	}

	handle, _, err := d.swapchainExt.CreateSwapchain(nil, info)
	if err != nil {
		return nil, err
	}

	chain := &Chain{
		driver: d.driver,
		ext:    d.swapchainExt,
		handle: handle,
		format: surfaceFormat.Format,
		extent: extent,
	}

	chain.images, _, err = d.swapchainExt.GetSwapchainImages(handle)
	if err != nil {
		chain.Destroy()
		return nil, errors.Wrap(err, "get swapchain images")
	}

	for _, image := range chain.images {
		view, err := d.createImageView(image, chain.format, core1_0.ImageAspectColor)
		if err != nil {
			chain.Destroy()
			return nil, errors.Wrap(err, "create swapchain image view")
		}
		chain.views = append(chain.views, view)
	}

	return chain, nil
}

// Attachment is one offscreen target of the geometry subpass.
type Attachment struct {
	driver core1_0.DeviceDriver

	kind   swapchain.Kind
	extent swapchain.Extent
	image  core1_0.Image
	memory core1_0.DeviceMemory
	view   core1_0.ImageView
}

func (a *Attachment) Extent() swapchain.Extent { return a.extent }
func (a *Attachment) View() core1_0.ImageView  { return a.view }

func (a *Attachment) Destroy() {
	if a.view.Initialized() {
		a.driver.DestroyImageView(a.view, nil)
		a.view = core1_0.ImageView{}
	}
	if a.image.Initialized() {
		a.driver.DestroyImage(a.image, nil)
		a.image = core1_0.Image{}
	}
	if a.memory.Initialized() {
		a.driver.FreeMemory(a.memory, nil)
		a.memory = core1_0.DeviceMemory{}
	}
}

var attachmentIndex = map[swapchain.Kind]int{
	swapchain.Depth:  rendergraph.AttachmentDepth,
	swapchain.Normal: rendergraph.AttachmentNormals,
	swapchain.Colour: rendergraph.AttachmentColour,
}

func (b *Backend) CreateAttachment(kind swapchain.Kind, extent swapchain.Extent) (*Attachment, error) {
	d := b.device

	idx, ok := attachmentIndex[kind]
	if !ok {
		return nil, errors.AssertionFailedf("no render pass attachment for %s", kind)
	}
	target := rendergraph.Targets[idx]

	props := d.instance.GetPhysicalDeviceFormatProperties(d.physical, target.Format)
	if props.OptimalTilingFeatures&target.Feature != target.Feature {
		return nil, errors.Newf("%s attachment format %s does not support %s with optimal tiling",
			target.Name, target.Format, target.Feature)
	}

	a := &Attachment{driver: d.driver, kind: kind, extent: extent}

	var err error
	a.image, a.memory, err = d.createImage(extent.Width, extent.Height, target.Format, target.Usage)
	if err != nil {
		return nil, err
	}

	a.view, err = d.createImageView(a.image, target.Format, target.Aspect)
	if err != nil {
		a.Destroy()
		return nil, err
	}

	return a, nil
}
