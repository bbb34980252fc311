//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

var shaderSources = []string{"ui.vert", "ui.frag"}

// Compiles the GLSL shaders in assets/shaders to SPIR-V.
func (Build) Shaders() error {
	return buildShaders()
}

// Compiles the shaders and builds the daw binary into bin/.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "daw"), "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the unit tests of every package.
func (Build) Test() error {
	if _, err := executeCmd("go", withArgs("test", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	for _, src := range shaderSources {
		in := filepath.Join("assets", "shaders", src)
		out := in + ".spv"
		if _, err := executeCmd("glslc", withArgs(in, "-o", out), withStream()); err != nil {
			return fmt.Errorf("compile %s: %w", src, err)
		}
	}
	return nil
}
