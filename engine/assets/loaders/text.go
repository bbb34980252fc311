package loaders

import (
	"io"
	"os"

	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

// TextLoader reads plain text files such as GLSL sources.
type TextLoader struct{}

func (tl *TextLoader) Load(name, path string) (*metadata.Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	return &metadata.Resource{
		Name:     name,
		Type:     metadata.ResourceTypeText,
		FullPath: path,
		DataSize: uint64(len(buf)),
		Data:     buf,
	}, nil
}

func (tl *TextLoader) Unload(res *metadata.Resource) error {
	res.Data = nil
	res.DataSize = 0
	return nil
}
