package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/deferred/rendergraph"
)

// Layouts is the descriptor set and pipeline layout of each subpass. They
// do not depend on the swapchain and live as long as the device.
type Layouts struct {
	driver core1_0.DeviceDriver

	GeometrySet      core1_0.DescriptorSetLayout
	LightingSet      core1_0.DescriptorSetLayout
	GeometryPipeline core1_0.PipelineLayout
	LightingPipeline core1_0.PipelineLayout
}

func (d *Device) CreateLayouts() (*Layouts, error) {
	l := &Layouts{driver: d.driver}

	var err error
	l.GeometrySet, _, err = d.driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: rendergraph.GeometryBindings(),
	})
	if err != nil {
		l.Destroy()
		return nil, errors.Wrap(err, "create geometry descriptor set layout")
	}

	l.LightingSet, _, err = d.driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: rendergraph.LightingBindings(),
	})
	if err != nil {
		l.Destroy()
		return nil, errors.Wrap(err, "create lighting descriptor set layout")
	}

	l.GeometryPipeline, _, err = d.driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{l.GeometrySet},
	})
	if err != nil {
		l.Destroy()
		return nil, errors.Wrap(err, "create geometry pipeline layout")
	}

	l.LightingPipeline, _, err = d.driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{l.LightingSet},
	})
	if err != nil {
		l.Destroy()
		return nil, errors.Wrap(err, "create lighting pipeline layout")
	}

	return l, nil
}

func (l *Layouts) Destroy() {
	if l.LightingPipeline.Initialized() {
		l.driver.DestroyPipelineLayout(l.LightingPipeline, nil)
		l.LightingPipeline = core1_0.PipelineLayout{}
	}
	if l.GeometryPipeline.Initialized() {
		l.driver.DestroyPipelineLayout(l.GeometryPipeline, nil)
		l.GeometryPipeline = core1_0.PipelineLayout{}
	}
	if l.LightingSet.Initialized() {
		l.driver.DestroyDescriptorSetLayout(l.LightingSet, nil)
		l.LightingSet = core1_0.DescriptorSetLayout{}
	}
	if l.GeometrySet.Initialized() {
		l.driver.DestroyDescriptorSetLayout(l.GeometrySet, nil)
		l.GeometrySet = core1_0.DescriptorSetLayout{}
	}
}
