package gpu

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func (d *Device) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := d.instance.GetPhysicalDeviceMemoryProperties(d.physical)
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Newf("no memory type matches %s", properties)
}

func (d *Device) createBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (core1_0.Buffer, core1_0.DeviceMemory, error) {
	buffer, _, err := d.driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return core1_0.Buffer{}, core1_0.DeviceMemory{}, err
	}

	requirements := d.driver.GetBufferMemoryRequirements(buffer)
	memoryType, err := d.findMemoryType(requirements.MemoryTypeBits, properties)
	if err != nil {
		d.driver.DestroyBuffer(buffer, nil)
		return core1_0.Buffer{}, core1_0.DeviceMemory{}, err
	}

	memory, _, err := d.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	})
	if err != nil {
		d.driver.DestroyBuffer(buffer, nil)
		return core1_0.Buffer{}, core1_0.DeviceMemory{}, err
	}

	if _, err = d.driver.BindBufferMemory(buffer, memory, 0); err != nil {
		d.driver.DestroyBuffer(buffer, nil)
		d.driver.FreeMemory(memory, nil)
		return core1_0.Buffer{}, core1_0.DeviceMemory{}, err
	}
	return buffer, memory, nil
}

func (d *Device) createImage(width, height int, format core1_0.Format, usage core1_0.ImageUsageFlags) (core1_0.Image, core1_0.DeviceMemory, error) {
	image, _, err := d.driver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return core1_0.Image{}, core1_0.DeviceMemory{}, err
	}

	requirements := d.driver.GetImageMemoryRequirements(image)

	memoryType, err := d.findMemoryType(requirements.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal)
	if usage&core1_0.ImageUsageTransientAttachment != 0 {
		// Tile based devices can leave transient attachments unbacked.
		lazy, lazyErr := d.findMemoryType(requirements.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal|core1_0.MemoryPropertyLazilyAllocated)
		if lazyErr == nil {
			memoryType, err = lazy, nil
		}
	}
	if err != nil {
		d.driver.DestroyImage(image, nil)
		return core1_0.Image{}, core1_0.DeviceMemory{}, err
	}

	memory, _, err := d.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	})
	if err != nil {
		d.driver.DestroyImage(image, nil)
		return core1_0.Image{}, core1_0.DeviceMemory{}, err
	}

	if _, err = d.driver.BindImageMemory(image, memory, 0); err != nil {
		d.driver.DestroyImage(image, nil)
		d.driver.FreeMemory(memory, nil)
		return core1_0.Image{}, core1_0.DeviceMemory{}, err
	}
	return image, memory, nil
}

func (d *Device) createImageView(image core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (core1_0.ImageView, error) {
	view, _, err := d.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	return view, err
}

// HostBuffer is a host visible, coherent buffer written through a mapping.
type HostBuffer struct {
	driver core1_0.DeviceDriver
	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
	size   int
}

func (d *Device) NewHostBuffer(size int, usage core1_0.BufferUsageFlags) (*HostBuffer, error) {
	buffer, memory, err := d.createBuffer(size, usage, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, errors.Wrapf(err, "create %d byte host buffer", size)
	}
	return &HostBuffer{driver: d.driver, buffer: buffer, memory: memory, size: size}, nil
}

func (b *HostBuffer) Buffer() core1_0.Buffer { return b.buffer }
func (b *HostBuffer) Size() int              { return b.size }

func (b *HostBuffer) Write(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > b.size {
		return errors.AssertionFailedf("write of %d bytes at %d overruns %d byte buffer", len(data), offset, b.size)
	}
	if len(data) == 0 {
		return nil
	}

	ptr, _, err := b.driver.MapMemory(b.memory, offset, len(data), 0)
	if err != nil {
		return errors.Wrap(err, "map buffer memory")
	}
	defer b.driver.UnmapMemory(b.memory)

	copy(unsafe.Slice((*byte)(ptr), len(data)), data)
	return nil
}

func (b *HostBuffer) Destroy() {
	if b.buffer.Initialized() {
		b.driver.DestroyBuffer(b.buffer, nil)
		b.buffer = core1_0.Buffer{}
	}
	if b.memory.Initialized() {
		b.driver.FreeMemory(b.memory, nil)
		b.memory = core1_0.DeviceMemory{}
	}
}

// UniformAllocator hands uniform rings their backing buffers.
type UniformAllocator struct {
	device *Device
}

func (d *Device) UniformAllocator() UniformAllocator { return UniformAllocator{device: d} }

func (a UniformAllocator) Allocate(size int) (*HostBuffer, error) {
	return a.device.NewHostBuffer(size, core1_0.BufferUsageUniformBuffer)
}
