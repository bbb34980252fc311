package renderer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spaghettifunk/daw/engine/core"
	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

type fakeBackend struct {
	mu sync.Mutex

	slots      uint32
	imageCount int
	width      uint32
	height     uint32

	// keyed by the 1-based call number
	acquireStatus map[int]SurfaceStatus
	submitStatus  map[int]SurfaceStatus
	presentStatus map[int]SurfaceStatus
	waitErr       error

	calls      []string
	waited     []uint32
	restored   []uint32
	resized    [][2]uint32
	draws      []uint32
	resolution []metadata.PushConstants

	acquires, submits, presents int
	nextImage                   uint32
	vertexCount                 uint32
	liveFramebuffers            int
	createdFramebuffers         int
	destroyedFramebuffers       int
	inFlight                    map[uint32]bool
}

func newFakeBackend(slots uint32, width, height uint32) *fakeBackend {
	b := &fakeBackend{
		slots:         slots,
		imageCount:    3,
		width:         width,
		height:        height,
		acquireStatus: map[int]SurfaceStatus{},
		submitStatus:  map[int]SurfaceStatus{},
		presentStatus: map[int]SurfaceStatus{},
		inFlight:      map[uint32]bool{},
	}
	b.buildFramebuffers()
	return b
}

func (b *fakeBackend) buildFramebuffers() {
	b.liveFramebuffers += b.imageCount
	b.createdFramebuffers += b.imageCount
}

func (b *fakeBackend) record(call string) {
	b.calls = append(b.calls, call)
}

func (b *fakeBackend) SlotCount() uint32 { return b.slots }

func (b *fakeBackend) WaitForSlot(slot uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("wait")
	b.waited = append(b.waited, slot)
	if b.waitErr != nil {
		return b.waitErr
	}
	b.inFlight[slot] = false
	return nil
}

func (b *fakeBackend) AcquireNextImage(slot uint32) (uint32, SurfaceStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("acquire")
	b.acquires++
	idx := b.nextImage
	b.nextImage = (b.nextImage + 1) % uint32(b.imageCount)
	return idx, b.acquireStatus[b.acquires], nil
}

func (b *fakeBackend) ResetSlot(slot uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("reset")
	return nil
}

func (b *fakeBackend) RecordFrame(slot, imageIndex uint32, pc metadata.PushConstants) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("record")
	b.draws = append(b.draws, b.vertexCount)
	b.resolution = append(b.resolution, pc)
	return nil
}

func (b *fakeBackend) Submit(slot uint32) (SurfaceStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("submit")
	b.submits++
	status := b.submitStatus[b.submits]
	if status != SurfaceOutOfDate {
		b.inFlight[slot] = true
	}
	return status, nil
}

func (b *fakeBackend) Present(slot, imageIndex uint32) (SurfaceStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("present")
	b.presents++
	return b.presentStatus[b.presents], nil
}

func (b *fakeBackend) RestoreSlot(slot uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("restore")
	b.restored = append(b.restored, slot)
	return nil
}

func (b *fakeBackend) RecreateSwapchain(width, height uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("recreate")
	b.resized = append(b.resized, [2]uint32{width, height})
	b.liveFramebuffers -= b.imageCount
	b.destroyedFramebuffers += b.imageCount
	b.width, b.height = width, height
	b.nextImage = 0
	b.buildFramebuffers()
	return nil
}

func (b *fakeBackend) Extent() (uint32, uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

func (b *fakeBackend) UploadVertices(vertices []metadata.Vertex) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("upload")
	b.vertexCount = uint32(len(vertices))
	return nil
}

func (b *fakeBackend) VertexCount() uint32 { return b.vertexCount }

func (b *fakeBackend) WaitIdle() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("idle")
	for k := range b.inFlight {
		b.inFlight[k] = false
	}
	return nil
}

func (b *fakeBackend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for slot, busy := range b.inFlight {
		if busy {
			return fmt.Errorf("shutdown with slot %d in flight", slot)
		}
	}
	b.record("shutdown")
	b.liveFramebuffers = 0
	return nil
}

func (b *fakeBackend) count(call string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c == call {
			n++
		}
	}
	return n
}

type fakeWindow struct {
	mu sync.Mutex
	// returned in order, the last one repeats
	sizes     [][2]uint32
	sizeCalls int
	// ShouldClose turns true after this many polls, never when zero
	closeAfter int
	polls      int
	waits      int
	wakeups    atomic.Int32
}

func (w *fakeWindow) FramebufferSize() (uint32, uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.sizeCalls
	if i >= len(w.sizes) {
		i = len(w.sizes) - 1
	}
	w.sizeCalls++
	return w.sizes[i][0], w.sizes[i][1]
}

func (w *fakeWindow) ShouldClose() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeAfter > 0 && w.polls >= w.closeAfter
}

func (w *fakeWindow) PollEvents() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.polls++
}

func (w *fakeWindow) WaitEvents() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waits++
}

func (w *fakeWindow) WaitEventsTimeout(time.Duration) {
	time.Sleep(time.Millisecond)
}

func (w *fakeWindow) PostEmptyEvent() {
	w.wakeups.Add(1)
}

func newLoop(b *fakeBackend, w *fakeWindow) (*FrameLoop, *core.ResizeMailbox, *int) {
	running := new(atomic.Bool)
	running.Store(true)
	mb := core.NewResizeMailbox()
	idles := new(int)
	fl := NewFrameLoop(b, w, mb, running, func() { *idles++ }, nil)
	return fl, mb, idles
}

func TestSlotRotation(t *testing.T) {
	for _, slots := range []uint32{1, 2, 3} {
		b := newFakeBackend(slots, 640, 480)
		fl, _, _ := newLoop(b, &fakeWindow{sizes: [][2]uint32{{640, 480}}})
		for k := 1; k <= 10; k++ {
			if err := fl.Iterate(); err != nil {
				t.Fatalf("Iterate: %v", err)
			}
			if want := uint32(k) % slots; fl.Slot() != want {
				t.Fatalf("slots=%d after %d iterations:\nhave slot %d\nwant %d", slots, k, fl.Slot(), want)
			}
		}
		if fl.Frames() != 10 {
			t.Fatalf("Frames:\nhave %d\nwant 10", fl.Frames())
		}
	}
}

func TestAcquireOutOfDate(t *testing.T) {
	b := newFakeBackend(2, 640, 480)
	b.acquireStatus[5] = SurfaceOutOfDate
	fl, _, _ := newLoop(b, &fakeWindow{sizes: [][2]uint32{{800, 600}}})

	for i := 1; i <= 4; i++ {
		if err := fl.Iterate(); err != nil {
			t.Fatalf("Iterate %d: %v", i, err)
		}
	}
	before := fl.Slot()

	if err := fl.Iterate(); err != nil {
		t.Fatalf("Iterate 5: %v", err)
	}
	if b.submits != 4 || b.presents != 4 {
		t.Fatalf("iteration 5 submitted or presented:\nhave submits=%d presents=%d\nwant 4 4", b.submits, b.presents)
	}
	if fl.Recreations() != 1 || len(b.resized) != 1 {
		t.Fatalf("recreations:\nhave %d (backend %d)\nwant 1", fl.Recreations(), len(b.resized))
	}
	if fl.Slot() != before {
		t.Fatalf("slot after recreation:\nhave %d\nwant %d", fl.Slot(), before)
	}

	if err := fl.Iterate(); err != nil {
		t.Fatalf("Iterate 6: %v", err)
	}
	if b.submits != 5 || b.presents != 5 {
		t.Fatalf("iteration 6:\nhave submits=%d presents=%d\nwant 5 5", b.submits, b.presents)
	}
	if got := b.waited[len(b.waited)-1]; got != before {
		t.Fatalf("iteration 6 slot:\nhave %d\nwant %d", got, before)
	}
	if fl.Recreations() != 1 {
		t.Fatalf("recreations after iteration 6:\nhave %d\nwant 1", fl.Recreations())
	}
}

func TestRecreateBlocksOnZeroSize(t *testing.T) {
	b := newFakeBackend(2, 640, 480)
	w := &fakeWindow{sizes: [][2]uint32{{0, 0}, {0, 0}, {0, 480}, {1024, 768}}}
	fl, mb, idles := newLoop(b, w)

	mb.Send(core.ResizeEvent{Width: 0, Height: 0})
	if err := fl.Iterate(); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if *idles != 3 {
		t.Fatalf("idle calls:\nhave %d\nwant 3", *idles)
	}
	if len(b.resized) != 1 || b.resized[0] != [2]uint32{1024, 768} {
		t.Fatalf("RecreateSwapchain calls:\nhave %v\nwant [[1024 768]]", b.resized)
	}
	if b.acquires != 0 {
		t.Fatalf("acquired during recreation: %d", b.acquires)
	}
}

func TestRecreateAbortsWhenStopped(t *testing.T) {
	b := newFakeBackend(2, 640, 480)
	w := &fakeWindow{sizes: [][2]uint32{{0, 0}}}
	running := new(atomic.Bool)
	running.Store(true)
	mb := core.NewResizeMailbox()
	fl := NewFrameLoop(b, w, mb, running, func() { running.Store(false) }, nil)

	mb.Send(core.ResizeEvent{})
	if err := fl.Iterate(); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(b.resized) != 0 {
		t.Fatalf("recreated with zero size: %v", b.resized)
	}
}

func TestRecreateIdempotent(t *testing.T) {
	b := newFakeBackend(2, 640, 480)
	fl, mb, _ := newLoop(b, &fakeWindow{sizes: [][2]uint32{{900, 700}}})

	for i := 0; i < 2; i++ {
		mb.Send(core.ResizeEvent{Width: 900, Height: 700})
		if err := fl.Iterate(); err != nil {
			t.Fatalf("Iterate: %v", err)
		}
	}
	if fl.Recreations() != 2 {
		t.Fatalf("recreations:\nhave %d\nwant 2", fl.Recreations())
	}
	if b.liveFramebuffers != b.imageCount {
		t.Fatalf("live framebuffers:\nhave %d\nwant %d", b.liveFramebuffers, b.imageCount)
	}
	if b.createdFramebuffers-b.destroyedFramebuffers != b.imageCount {
		t.Fatalf("created-destroyed:\nhave %d\nwant %d", b.createdFramebuffers-b.destroyedFramebuffers, b.imageCount)
	}
	if err := fl.Iterate(); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if b.presents != 1 {
		t.Fatalf("presents after recreation:\nhave %d\nwant 1", b.presents)
	}
	if pc := b.resolution[0].Resolution; pc[0] != 900 || pc[1] != 700 {
		t.Fatalf("push constants:\nhave %v\nwant [900 700]", pc)
	}
}

func TestMailboxCoalesces(t *testing.T) {
	b := newFakeBackend(2, 640, 480)
	fl, mb, _ := newLoop(b, &fakeWindow{sizes: [][2]uint32{{300, 200}}})
	for i := uint32(1); i <= 5; i++ {
		mb.Send(core.ResizeEvent{Width: i * 100, Height: i * 100})
	}
	if err := fl.Iterate(); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(b.resized) != 1 {
		t.Fatalf("recreations:\nhave %d\nwant 1", len(b.resized))
	}
}

func TestSubmitOutOfDateRestoresSlot(t *testing.T) {
	b := newFakeBackend(2, 640, 480)
	b.submitStatus[2] = SurfaceOutOfDate
	fl, _, _ := newLoop(b, &fakeWindow{sizes: [][2]uint32{{640, 480}}})

	for i := 0; i < 2; i++ {
		if err := fl.Iterate(); err != nil {
			t.Fatalf("Iterate: %v", err)
		}
	}
	if len(b.restored) != 1 || b.restored[0] != 1 {
		t.Fatalf("restored slots:\nhave %v\nwant [1]", b.restored)
	}
	if b.presents != 1 {
		t.Fatalf("presents:\nhave %d\nwant 1", b.presents)
	}
	if fl.Slot() != 1 {
		t.Fatalf("slot:\nhave %d\nwant 1", fl.Slot())
	}
	if fl.Recreations() != 1 {
		t.Fatalf("recreations:\nhave %d\nwant 1", fl.Recreations())
	}
}

func TestPresentStaleRecreatesNextIteration(t *testing.T) {
	for _, status := range []SurfaceStatus{SurfaceSuboptimal, SurfaceOutOfDate} {
		b := newFakeBackend(2, 640, 480)
		b.presentStatus[1] = status
		fl, _, _ := newLoop(b, &fakeWindow{sizes: [][2]uint32{{640, 480}}})

		if err := fl.Iterate(); err != nil {
			t.Fatalf("Iterate: %v", err)
		}
		if fl.Slot() != 1 || fl.Recreations() != 0 {
			t.Fatalf("%s: after present:\nhave slot=%d recreations=%d\nwant 1 0", status, fl.Slot(), fl.Recreations())
		}
		if err := fl.Iterate(); err != nil {
			t.Fatalf("Iterate: %v", err)
		}
		if fl.Recreations() != 1 || b.acquires != 1 {
			t.Fatalf("%s: next iteration:\nhave recreations=%d acquires=%d\nwant 1 1", status, fl.Recreations(), b.acquires)
		}
	}
}

func TestAcquireSuboptimalStillPresents(t *testing.T) {
	b := newFakeBackend(2, 640, 480)
	b.acquireStatus[1] = SurfaceSuboptimal
	fl, _, _ := newLoop(b, &fakeWindow{sizes: [][2]uint32{{640, 480}}})
	if err := fl.Iterate(); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if b.presents != 1 || fl.Recreations() != 0 {
		t.Fatalf("have presents=%d recreations=%d\nwant 1 0", b.presents, fl.Recreations())
	}
}

func TestIterationOrder(t *testing.T) {
	b := newFakeBackend(2, 640, 480)
	fl, _, _ := newLoop(b, &fakeWindow{sizes: [][2]uint32{{640, 480}}})
	if err := fl.Iterate(); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	want := []string{"wait", "acquire", "reset", "record", "submit", "present"}
	if len(b.calls) != len(want) {
		t.Fatalf("calls:\nhave %v\nwant %v", b.calls, want)
	}
	for i := range want {
		if b.calls[i] != want[i] {
			t.Fatalf("calls:\nhave %v\nwant %v", b.calls, want)
		}
	}
}

func TestDegenerateScenario(t *testing.T) {
	b := newFakeBackend(2, 640, 480)
	w := &fakeWindow{sizes: [][2]uint32{{640, 480}}, closeAfter: 20}
	cfg := metadata.DefaultRendererBackendConfig()
	cfg.Threading = metadata.ThreadingSingle

	vertices := []metadata.Vertex{metadata.NewVertex(10, 10), metadata.NewVertex(10, 10)}
	r, err := New(w, b, nil, cfg, vertices)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(b.draws) != 19 {
		t.Fatalf("draws:\nhave %d\nwant 19", len(b.draws))
	}
	for i, n := range b.draws {
		if n != 2 {
			t.Fatalf("draw %d:\nhave %d vertices\nwant 2", i, n)
		}
		if pc := b.resolution[i].Resolution; pc[0] != 640 || pc[1] != 480 {
			t.Fatalf("draw %d resolution:\nhave %v\nwant [640 480]", i, pc)
		}
	}
	if r.Running() {
		t.Fatal("renderer still running after Run returned")
	}
	if r.Loop().State() != StateStopped {
		t.Fatalf("state:\nhave %s\nwant %s", r.Loop().State(), StateStopped)
	}
	if err := r.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func TestDestroyWaitsForIdle(t *testing.T) {
	b := newFakeBackend(2, 640, 480)
	w := &fakeWindow{sizes: [][2]uint32{{640, 480}}, closeAfter: 4}
	cfg := metadata.DefaultRendererBackendConfig()
	cfg.Threading = metadata.ThreadingSingle

	r, err := New(w, b, nil, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := r.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	idle, shutdown := -1, -1
	for i, c := range b.calls {
		switch c {
		case "idle":
			if idle < 0 {
				idle = i
			}
		case "shutdown":
			shutdown = i
		}
	}
	if idle < 0 || shutdown < 0 || idle > shutdown {
		t.Fatalf("teardown order: idle at %d, shutdown at %d", idle, shutdown)
	}
	if err := r.Destroy(); !errors.Is(err, core.ErrRendererDestroyed) {
		t.Fatalf("second Destroy:\nhave %v\nwant %v", err, core.ErrRendererDestroyed)
	}
	if err := r.Run(); !errors.Is(err, core.ErrRendererDestroyed) {
		t.Fatalf("Run after Destroy:\nhave %v\nwant %v", err, core.ErrRendererDestroyed)
	}
}

func TestDualThreadedStop(t *testing.T) {
	b := newFakeBackend(2, 640, 480)
	w := &fakeWindow{sizes: [][2]uint32{{640, 480}}}
	r, err := New(w, b, nil, metadata.DefaultRendererBackendConfig(), []metadata.Vertex{metadata.NewVertex(0, 0)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	deadline := time.Now().Add(5 * time.Second)
	for b.count("present") < 10 {
		if time.Now().After(deadline) {
			t.Fatal("frame loop made no progress")
		}
		time.Sleep(time.Millisecond)
	}
	r.Mailbox().Send(core.ResizeEvent{Width: 640, Height: 480})
	r.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if w.wakeups.Load() == 0 {
		t.Fatal("main thread was never woken")
	}
	if err := r.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func TestFrameErrorStopsRun(t *testing.T) {
	for _, mode := range []metadata.ThreadingMode{metadata.ThreadingSingle, metadata.ThreadingDual} {
		b := newFakeBackend(2, 640, 480)
		b.waitErr = core.ErrDeviceLost
		cfg := metadata.DefaultRendererBackendConfig()
		cfg.Threading = mode
		r, err := New(&fakeWindow{sizes: [][2]uint32{{640, 480}}}, b, nil, cfg, nil)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := r.Run(); !errors.Is(err, core.ErrDeviceLost) {
			t.Fatalf("%s: Run:\nhave %v\nwant %v", mode, err, core.ErrDeviceLost)
		}
		if err := r.Destroy(); err != nil {
			t.Fatalf("%s: Destroy: %v", mode, err)
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := metadata.DefaultRendererBackendConfig()
	cfg.SlotCount = 0
	b := newFakeBackend(2, 640, 480)
	if _, err := New(&fakeWindow{sizes: [][2]uint32{{1, 1}}}, b, nil, cfg, nil); err == nil {
		t.Fatal("New accepted zero slots")
	}
	if b.count("upload") != 0 {
		t.Fatal("vertices uploaded for a rejected config")
	}
}
