//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the engine with daw.toml.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", "."), withEnv("DAW_CONFIG=daw.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Same as Engine with the validation layers enabled.
func (Run) Debug() error {
	if err := buildShaders(); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("run", "."), withEnv("DAW_CONFIG=daw.toml", "DAW_VALIDATION=1"), withStream()); err != nil {
		return err
	}
	return nil
}
