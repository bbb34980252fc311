package assets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/daw/engine/assets/loaders"
	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

var spirvHeader = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newManager(t *testing.T, watch bool) (*AssetManager, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "shaders", "ui.vert.spv"), spirvHeader)
	writeFile(t, filepath.Join(dir, "shaders", "ui.frag.spv"), spirvHeader)
	writeFile(t, filepath.Join(dir, "shaders", "ui.vert"), []byte("#version 450\n"))
	writeFile(t, filepath.Join(dir, "shaders", "broken.spv"), []byte{1, 2, 3, 4})
	writeFile(t, filepath.Join(dir, "readme.md"), []byte("ignored"))

	am, err := NewAssetManager(dir)
	if err != nil {
		t.Fatalf("NewAssetManager: %v", err)
	}
	if err := am.Initialize(watch); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { am.Shutdown() })
	return am, dir
}

func TestLoadShader(t *testing.T) {
	am, _ := newManager(t, false)

	res, err := am.LoadAsset("ui.vert", metadata.ResourceTypeShader)
	if err != nil {
		t.Fatalf("LoadAsset: %v", err)
	}
	if res.Name != "ui.vert" || res.Type != metadata.ResourceTypeShader {
		t.Fatalf("have %s/%s, want ui.vert/shader", res.Name, res.Type)
	}
	if res.DataSize != uint64(len(spirvHeader)) || len(res.Data) != len(spirvHeader) {
		t.Fatalf("have %d bytes, want %d", res.DataSize, len(spirvHeader))
	}

	info, ok := am.Lookup("shaders/ui.vert.spv")
	if !ok || info.LastLoaded.IsZero() {
		t.Fatalf("load time not recorded: %+v", info)
	}

	if err := am.UnloadAsset(res); err != nil || res.Data != nil {
		t.Fatalf("unload: %v, data %v", err, res.Data)
	}
}

func TestLoadErrors(t *testing.T) {
	am, _ := newManager(t, false)

	if _, err := am.LoadAsset("missing", metadata.ResourceTypeShader); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("have %v, want ErrAssetNotFound", err)
	}
	if _, err := am.LoadAsset("broken", metadata.ResourceTypeShader); !errors.Is(err, loaders.ErrInvalidSPIRV) {
		t.Fatalf("have %v, want ErrInvalidSPIRV", err)
	}
	if _, err := am.LoadAsset("readme.md", metadata.ResourceTypeNone); err == nil {
		t.Fatalf("expected an error for an unknown type")
	}
	if _, ok := am.Lookup("readme.md"); ok {
		t.Fatalf("unknown extensions must not be indexed")
	}
}

func TestLoadText(t *testing.T) {
	am, _ := newManager(t, false)

	res, err := am.LoadAsset("shaders/ui.vert", metadata.ResourceTypeText)
	if err != nil {
		t.Fatalf("LoadAsset: %v", err)
	}
	if string(res.Data) != "#version 450\n" {
		t.Fatalf("have %q", res.Data)
	}
}

func TestShutdown(t *testing.T) {
	am, _ := newManager(t, true)
	if err := am.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := am.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if _, err := am.LoadAsset("ui.vert", metadata.ResourceTypeShader); !errors.Is(err, ErrClosed) {
		t.Fatalf("have %v, want ErrClosed", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatchIndexesNewFiles(t *testing.T) {
	am, dir := newManager(t, true)

	writeFile(t, filepath.Join(dir, "shaders", "extra.frag.spv"), spirvHeader)
	waitFor(t, "new shader", func() bool {
		_, ok := am.Lookup("shaders/extra.frag.spv")
		return ok
	})

	if err := os.Remove(filepath.Join(dir, "shaders", "extra.frag.spv")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "removal", func() bool {
		_, ok := am.Lookup("shaders/extra.frag.spv")
		return !ok
	})
}

func TestWatchMarksLoadedAssetsStale(t *testing.T) {
	am, dir := newManager(t, true)

	changed := make(chan AssetInfo, 8)
	am.OnChange(func(info AssetInfo) { changed <- info })

	if _, err := am.LoadAsset("ui.frag", metadata.ResourceTypeShader); err != nil {
		t.Fatalf("LoadAsset: %v", err)
	}
	writeFile(t, filepath.Join(dir, "shaders", "ui.frag.spv"), append(spirvHeader, spirvHeader...))

	select {
	case info := <-changed:
		if info.Path != "shaders/ui.frag.spv" || !info.Stale {
			t.Fatalf("have %+v, want stale ui.frag", info)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no change notification")
	}
}
