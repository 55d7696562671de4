//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

// Builds the shaders and runs the renderer with deferred.toml.
func Run() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run deferred...")
	_, err := executeCmd("go", withArgs("run", ".", "-config", "deferred.toml"), withStream())
	return err
}
