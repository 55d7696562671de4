// Package gpu is the Vulkan backend: device bootstrap, the swapchain group
// objects and the per-image frame resources.
package gpu

import (
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

type Options struct {
	AppName    string
	Validation bool
}

type queueFamilies struct {
	graphics *int
	present  *int
}

func (f queueFamilies) complete() bool {
	return f.graphics != nil && f.present != nil
}

// Device owns the instance, the surface and the logical device, plus the
// command pool every frame allocates from.
type Device struct {
	logger *log.Logger
	window *sdl.Window

	global   core1_0.GlobalDriver
	instance core1_0.CoreInstanceDriver
	driver   core1_0.CoreDeviceDriver

	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger
	surfaceExt     khr_surface.ExtensionDriver
	surface        khr_surface.Surface
	swapchainExt   khr_swapchain.ExtensionDriver

	physical core1_0.PhysicalDevice
	families queueFamilies

	graphicsQueue core1_0.Queue
	presentQueue  core1_0.Queue
	commandPool   core1_0.CommandPool
}

// Open brings up Vulkan for window. On error everything created so far is
// released.
func Open(window *sdl.Window, opts Options, logger *log.Logger) (*Device, error) {
	d := &Device{
		logger: logger.WithPrefix("gpu"),
		window: window,
	}
	if err := d.open(opts); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) open(opts Options) error {
	var err error
	d.global, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return errors.Wrap(err, "load vulkan")
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"create instance", func() error { return d.createInstance(opts) }},
		{"create debug messenger", func() error { return d.setupDebugMessenger(opts) }},
		{"create surface", d.createSurface},
		{"pick physical device", d.pickPhysicalDevice},
		{"create logical device", d.createLogicalDevice},
		{"create command pool", d.createCommandPool},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return errors.Wrap(err, step.name)
		}
	}

	props, err := d.instance.GetPhysicalDeviceProperties(d.physical)
	if err != nil {
		return errors.Wrap(err, "read device properties")
	}
	d.logger.Info("device ready", "name", props.DriverName, "graphics", *d.families.graphics,
		"present", *d.families.present, "validation", opts.Validation)

	return nil
}

func (d *Device) createInstance(opts Options) error {
	info := core1_0.InstanceCreateInfo{
		ApplicationName:    opts.AppName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "deferred",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := d.global.AvailableExtensions()
	if err != nil {
		return err
	}

	for _, ext := range d.window.VulkanGetInstanceExtensions() {
		if _, ok := extensions[ext]; !ok {
			return errors.Newf("missing instance extension %s required by sdl", ext)
		}
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, ext)
	}

	if _, ok := extensions[khr_portability_enumeration.ExtensionName]; ok {
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		info.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if opts.Validation {
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, ext_debug_utils.ExtensionName)

		layers, _, err := d.global.AvailableLayers()
		if err != nil {
			return err
		}
		for _, layer := range validationLayers {
			if _, ok := layers[layer]; !ok {
				return errors.Newf("validation layer %s not available; install the Vulkan SDK or set vulkan.validation = false", layer)
			}
			info.EnabledLayerNames = append(info.EnabledLayerNames, layer)
		}

		info.Next = d.debugMessengerOptions()
	}

	d.instance, _, err = d.global.CreateInstance(nil, info)
	return err
}

func (d *Device) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    d.logDebug,
	}
}

func (d *Device) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	if severity&ext_debug_utils.SeverityError != 0 {
		d.logger.Error(data.Message, "type", msgType)
	} else {
		d.logger.Warn(data.Message, "type", msgType)
	}
	return false
}

func (d *Device) setupDebugMessenger(opts Options) error {
	if !opts.Validation {
		return nil
	}

	var err error
	d.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(d.instance)
	d.debugMessenger, _, err = d.debugDriver.CreateDebugUtilsMessenger(nil, d.debugMessengerOptions())
	return err
}

func (d *Device) createSurface() error {
	d.surfaceExt = khr_surface.CreateExtensionDriverFromCoreDriver(d.instance)
	surface, err := vkng_sdl2.CreateSurface(d.instance.Instance(), d.surfaceExt, d.window)
	if err != nil {
		return err
	}
	d.surface = surface
	return nil
}

func (d *Device) pickPhysicalDevice() error {
	devices, _, err := d.instance.EnumeratePhysicalDevices()
	if err != nil {
		return err
	}

	for _, device := range devices {
		families, ok := d.suitable(device)
		if ok {
			d.physical = device
			d.families = families
			return nil
		}
	}

	return errors.New("no device offers graphics, presentation and swapchain support")
}

func (d *Device) suitable(device core1_0.PhysicalDevice) (queueFamilies, bool) {
	families, err := d.findQueueFamilies(device)
	if err != nil || !families.complete() {
		return families, false
	}

	extensions, _, err := d.instance.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return families, false
	}
	for _, ext := range deviceExtensions {
		if _, ok := extensions[ext]; !ok {
			return families, false
		}
	}

	formats, _, err := d.surfaceExt.GetPhysicalDeviceSurfaceFormats(d.surface, device)
	if err != nil || len(formats) == 0 {
		return families, false
	}
	modes, _, err := d.surfaceExt.GetPhysicalDeviceSurfacePresentModes(d.surface, device)
	if err != nil || len(modes) == 0 {
		return families, false
	}

	return families, true
}

func (d *Device) findQueueFamilies(device core1_0.PhysicalDevice) (queueFamilies, error) {
	families := queueFamilies{}

	for idx, family := range d.instance.GetPhysicalDeviceQueueFamilyProperties(device) {
		if family.QueueFlags&core1_0.QueueGraphics != 0 && families.graphics == nil {
			families.graphics = new(int)
			*families.graphics = idx
		}

		supported, _, err := d.surfaceExt.GetPhysicalDeviceSurfaceSupport(d.surface, device, idx)
		if err != nil {
			return families, err
		}
		if supported && families.present == nil {
			families.present = new(int)
			*families.present = idx
		}

		if families.complete() {
			break
		}
	}

	return families, nil
}

func (d *Device) createLogicalDevice() error {
	unique := []int{*d.families.graphics}
	if *d.families.present != unique[0] {
		unique = append(unique, *d.families.present)
	}

	var queues []core1_0.DeviceQueueCreateInfo
	for _, family := range unique {
		queues = append(queues, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensionNames := append([]string(nil), deviceExtensions...)

	extensions, _, err := d.instance.EnumerateDeviceExtensionProperties(d.physical)
	if err != nil {
		return err
	}
	if _, ok := extensions[khr_portability_subset.ExtensionName]; ok {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	d.driver, _, err = d.instance.CreateDevice(d.physical, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queues,
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return err
	}

	d.swapchainExt = khr_swapchain.CreateExtensionDriverFromCoreDriver(d.driver)
	d.graphicsQueue = d.driver.GetQueue(*d.families.graphics, 0)
	d.presentQueue = d.driver.GetQueue(*d.families.present, 0)
	return nil
}

func (d *Device) createCommandPool() error {
	pool, _, err := d.driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: *d.families.graphics,
	})
	if err != nil {
		return err
	}
	d.commandPool = pool
	return nil
}

// UniformAlignment is the device's minUniformBufferOffsetAlignment.
func (d *Device) UniformAlignment() (int, error) {
	props, err := d.instance.GetPhysicalDeviceProperties(d.physical)
	if err != nil {
		return 0, errors.Wrap(err, "read device properties")
	}
	return props.Limits.MinUniformBufferOffsetAlignment, nil
}

// WaitIdle blocks until the device has finished all submitted work.
func (d *Device) WaitIdle() error {
	if d.driver == nil {
		return nil
	}
	_, err := d.driver.DeviceWaitIdle()
	return errors.Wrap(err, "wait for device idle")
}

// Close destroys the device objects in reverse creation order. It does not
// wait for the device; call WaitIdle first.
func (d *Device) Close() {
	if d.commandPool.Initialized() {
		d.driver.DestroyCommandPool(d.commandPool, nil)
		d.commandPool = core1_0.CommandPool{}
	}

	if d.driver != nil {
		d.driver.DestroyDevice(nil)
		d.driver = nil
	}

	if d.debugMessenger.Initialized() {
		d.debugDriver.DestroyDebugUtilsMessenger(d.debugMessenger, nil)
		d.debugMessenger = ext_debug_utils.DebugUtilsMessenger{}
	}

	if d.surface.Initialized() {
		d.surfaceExt.DestroySurface(d.surface, nil)
		d.surface = khr_surface.Surface{}
	}

	if d.instance != nil {
		d.instance.DestroyInstance(nil)
		d.instance = nil
	}
}
