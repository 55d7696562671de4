package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/deferred/rendergraph"
	"github.com/vkngwrapper/deferred/shaders"
)

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}

// ShaderSet is the modules of both subpasses. They outlive every render
// graph built from them.
type ShaderSet struct {
	driver   core1_0.DeviceDriver
	Geometry rendergraph.Shaders
	Lighting rendergraph.Shaders
}

func (d *Device) LoadShaders() (*ShaderSet, error) {
	set := &ShaderSet{driver: d.driver}

	for _, program := range []struct {
		name string
		dst  *rendergraph.Shaders
	}{
		{shaders.Geometry, &set.Geometry},
		{shaders.Lighting, &set.Lighting},
	} {
		for _, stage := range []struct {
			name string
			dst  *core1_0.ShaderModule
		}{
			{shaders.Vertex, &program.dst.Vertex},
			{shaders.Fragment, &program.dst.Fragment},
		} {
			module, err := d.loadShader(program.name, stage.name)
			if err != nil {
				set.Destroy()
				return nil, err
			}
			*stage.dst = module
		}
	}

	return set, nil
}

func (d *Device) loadShader(program, stage string) (core1_0.ShaderModule, error) {
	code, err := shaders.SPIRV(program, stage)
	if err != nil {
		return core1_0.ShaderModule{}, err
	}

	module, _, err := d.driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: bytesToBytecode(code),
	})
	if err != nil {
		return core1_0.ShaderModule{}, errors.Wrapf(err, "create %s %s shader module", program, stage)
	}
	return module, nil
}

func (s *ShaderSet) Destroy() {
	for _, module := range []*core1_0.ShaderModule{
		&s.Geometry.Vertex, &s.Geometry.Fragment,
		&s.Lighting.Vertex, &s.Lighting.Fragment,
	} {
		if module.Initialized() {
			s.driver.DestroyShaderModule(*module, nil)
			*module = core1_0.ShaderModule{}
		}
	}
}
