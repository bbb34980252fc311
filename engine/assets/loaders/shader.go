package loaders

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

// First word of every SPIR-V module.
const spirvMagic = 0x07230203

var ErrInvalidSPIRV = errors.New("not a SPIR-V binary")

// ShaderLoader reads compiled SPIR-V stages. The contents are otherwise
// opaque; the driver validates them when the module is created.
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(name, path string) (*metadata.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%s: %w: size %d is not a multiple of 4", path, ErrInvalidSPIRV, len(data))
	}
	if binary.LittleEndian.Uint32(data) != spirvMagic {
		return nil, fmt.Errorf("%s: %w: bad magic %#x", path, ErrInvalidSPIRV, binary.LittleEndian.Uint32(data))
	}
	return &metadata.Resource{
		Name:     name,
		Type:     metadata.ResourceTypeShader,
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     data,
	}, nil
}

func (sl *ShaderLoader) Unload(res *metadata.Resource) error {
	res.Data = nil
	res.DataSize = 0
	return nil
}
