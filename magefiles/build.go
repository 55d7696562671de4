//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"

	"github.com/vkngwrapper/deferred/shaders"
)

type Build mg.Namespace

// Compiles every GLSL stage in shaders/ to SPIR-V in shaders/spv/.
func (Build) Shaders() error {
	for _, program := range shaders.Programs {
		for _, stage := range shaders.Stages {
			src := filepath.Join("shaders", shaders.Source(program, stage))
			out := filepath.Join("shaders", shaders.Output(program, stage))
			if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Compiles the shaders and then builds the binary.
func (Build) App() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/deferred", "."), withStream())
	return err
}

// Runs the unit tests. The gpu package links SDL2 through cgo.
func Test() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}
