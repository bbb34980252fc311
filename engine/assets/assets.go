package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/daw/engine/assets/loaders"
	"github.com/spaghettifunk/daw/engine/core"
	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrClosed        = errors.New("asset manager already closed")
)

type AssetInfo struct {
	// Path relative to the assets directory, slash separated.
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
	// Set when the file changed on disk after it was last loaded.
	Stale bool
}

// AssetManager indexes the files under an assets directory and loads them
// by name. With watching enabled the index follows the directory.
type AssetManager struct {
	dir     string
	assets  map[string]AssetInfo
	loaders map[metadata.ResourceType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool

	onChange func(AssetInfo)
}

func NewAssetManager(dir string) (*AssetManager, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	am := &AssetManager{
		dir:     abs,
		assets:  make(map[string]AssetInfo),
		loaders: make(map[metadata.ResourceType]Loader),
	}

	// Register loaders
	am.registerLoader(metadata.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(metadata.ResourceTypeText, &loaders.TextLoader{})
	return am, nil
}

// Initialize indexes the assets directory. When watch is set, files created,
// written or removed afterwards update the index.
func (am *AssetManager) Initialize(watch bool) error {
	if !watch {
		return am.indexRecursive(am.dir, nil)
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	am.fsnotify = fsWatch
	am.done = make(chan struct{})
	am.stopped = make(chan struct{})

	if err := am.indexRecursive(am.dir, fsWatch); err != nil {
		fsWatch.Close()
		am.fsnotify = nil
		return err
	}
	go am.start()
	core.LogDebug("Watching assets under %s.", am.dir)
	return nil
}

// OnChange registers fn to be called, from the watcher goroutine, whenever an
// indexed file is written.
func (am *AssetManager) OnChange(fn func(AssetInfo)) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.onChange = fn
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// assetPath is where an asset of the given type and name lives, relative to
// the assets directory.
func assetPath(name string, resourceType metadata.ResourceType) (string, error) {
	switch resourceType {
	case metadata.ResourceTypeShader:
		return "shaders/" + name + ".spv", nil
	case metadata.ResourceTypeText:
		return name, nil
	default:
		return "", fmt.Errorf("unknown resource type %s", resourceType)
	}
}

// LoadAsset loads an asset using the loader registered for its type.
func (am *AssetManager) LoadAsset(name string, resourceType metadata.ResourceType) (*metadata.Resource, error) {
	path, err := assetPath(name, resourceType)
	if err != nil {
		return nil, err
	}

	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil, ErrClosed
	}
	asset, exists := am.assets[path]
	if !exists {
		am.mutex.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, path)
	}
	asset.LastLoaded = time.Now()
	asset.Stale = false
	am.assets[path] = asset
	loader, loaderExists := am.loaders[asset.Type]
	am.mutex.Unlock()

	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %s", asset.Type)
	}
	res, err := loader.Load(name, filepath.Join(am.dir, filepath.FromSlash(path)))
	if err != nil {
		core.LogError("failed to load asset %s: %s", path, err)
		return nil, err
	}
	return res, nil
}

func (am *AssetManager) UnloadAsset(res *metadata.Resource) error {
	am.mutex.RLock()
	loader, ok := am.loaders[res.Type]
	am.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("no loader registered for asset type: %s", res.Type)
	}
	return loader.Unload(res)
}

// Lookup returns the index entry of path, relative to the assets directory.
func (am *AssetManager) Lookup(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[path]
	return info, ok
}

// Shutdown stops the watcher, if any. Further loads fail with ErrClosed.
func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	if am.fsnotify != nil {
		close(am.done)
		<-am.stopped
	}
	return nil
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleWatchEvent(e)

		case e, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(e.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

func (am *AssetManager) handleWatchEvent(e fsnotify.Event) {
	s, err := os.Stat(e.Name)
	if err == nil && s.IsDir() {
		if e.Op&fsnotify.Create != 0 {
			if err := am.indexRecursive(e.Name, am.fsnotify); err != nil {
				core.LogWarn("failed to watch %s: %s", e.Name, err)
			}
		}
		return
	}
	// Handle create or modify events
	if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		am.handleFileEvent(e.Name)
	}
	// A removed path cannot be stat'ed, so try both the index and the watch list.
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		am.removeAsset(e.Name)
		_ = am.fsnotify.Remove(e.Name)
	}
}

// indexRecursive indexes every file under root and, with a watcher, adds
// every directory to it.
func (am *AssetManager) indexRecursive(root string, watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(root, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if watcher != nil {
				return watcher.Add(walkPath)
			}
			return nil
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

func (am *AssetManager) relative(path string) (string, bool) {
	rel, err := filepath.Rel(am.dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) {
	rel, ok := am.relative(path)
	if !ok {
		return
	}
	assetType := determineAssetType(rel)
	if assetType == metadata.ResourceTypeNone {
		return
	}

	am.mutex.Lock()
	info, existed := am.assets[rel]
	if !existed {
		info = AssetInfo{Path: rel, Type: assetType}
	} else if !info.LastLoaded.IsZero() {
		info.Stale = true
	}
	am.assets[rel] = info
	onChange := am.onChange
	am.mutex.Unlock()

	if existed && onChange != nil {
		onChange(info)
	}
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	rel, ok := am.relative(path)
	if !ok {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, rel)
}

func determineAssetType(path string) metadata.ResourceType {
	switch filepath.Ext(path) {
	case ".spv":
		return metadata.ResourceTypeShader
	case ".vert", ".frag", ".glsl":
		return metadata.ResourceTypeText
	default:
		return metadata.ResourceTypeNone
	}
}
