// Package shaders holds the GLSL sources and embeds the SPIR-V that
// `mage build:shaders` compiles from them into spv/.
package shaders

import (
	"embed"
	"io/fs"
	"path"

	"github.com/cockroachdb/errors"
)

//go:embed all:spv
var compiled embed.FS

const (
	Geometry = "geometry"
	Lighting = "lighting"
)

const (
	Vertex   = "vert"
	Fragment = "frag"
)

// Programs lists every program and the stages it has a source for.
var Programs = []string{Geometry, Lighting}
var Stages = []string{Vertex, Fragment}

// Source is the GLSL file name of a program stage, relative to this
// directory.
func Source(program, stage string) string {
	return program + "." + stage
}

// Output is where the compiled stage lands, relative to this directory.
func Output(program, stage string) string {
	return path.Join("spv", Source(program, stage)+".spv")
}

// SPIRV returns the compiled stage.
func SPIRV(program, stage string) ([]byte, error) {
	name := Output(program, stage)
	code, err := fs.ReadFile(compiled, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Newf("shader %s not built; run `mage build:shaders`", name)
	} else if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", name)
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Newf("shader %s is %d bytes, not SPIR-V", name, len(code))
	}
	return code, nil
}
