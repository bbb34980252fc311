package assets

import "github.com/spaghettifunk/daw/engine/renderer/metadata"

type Loader interface {
	Load(name, path string) (*metadata.Resource, error)
	Unload(*metadata.Resource) error
}
