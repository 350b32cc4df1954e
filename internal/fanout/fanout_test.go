package fanout

import (
	"context"
	"errors"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/andresmejia3/textmask/internal/device"
	"github.com/andresmejia3/textmask/internal/ocr"
	"github.com/andresmejia3/textmask/internal/processor"
	"github.com/andresmejia3/textmask/internal/types"
	"github.com/disintegration/imaging"
)

type fakeOCR struct{}

func (fakeOCR) Detect(context.Context, []byte, bool) ([]types.Detection, error) {
	return []types.Detection{{
		Polygon: []types.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}},
		Text:    "SALE",
	}}, nil
}

func (fakeOCR) Close() error { return nil }

// recordingFactory remembers which devices services were opened on.
type recordingFactory struct {
	mu      sync.Mutex
	devices []int
	opened  int
}

func (r *recordingFactory) open(_ context.Context, device int, _ ocr.Settings) (ocr.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = append(r.devices, device)
	r.opened++
	return fakeOCR{}, nil
}

type failingEnumerator struct{}

func (failingEnumerator) List(context.Context) ([]device.Device, error) {
	return nil, errors.New("nvidia-smi not found")
}

// makeParent creates parent/<child>/img.png for every child plus a stray file.
func makeParent(t *testing.T, children ...string) (string, string) {
	t.Helper()
	root := t.TempDir()
	parentIn := filepath.Join(root, "in")
	for _, c := range children {
		dir := filepath.Join(parentIn, c)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := imaging.Save(imaging.New(8, 8, color.White), filepath.Join(dir, "img.png")); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(parentIn, "notes.txt"), []byte("x"), 0644)
	return parentIn, filepath.Join(root, "out")
}

func newCoordinator(f ocr.Factory) *Coordinator {
	return &Coordinator{
		Engine:  f,
		Device:  -1,
		Options: processor.Options{Progress: io.Discard},
		Out:     io.Discard,
	}
}

func TestDiscover(t *testing.T) {
	parentIn, parentOut := makeParent(t, "b", "a")

	tasks, err := Discover(parentIn, parentOut, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("Expected 2 tasks (files ignored), got %d", len(tasks))
	}
	if tasks[0].InputDir != filepath.Join(parentIn, "a") || tasks[0].OutputDir != filepath.Join(parentOut, "a") {
		t.Errorf("Unexpected first task %+v", tasks[0])
	}
	if tasks[1].TextPath != filepath.Join(parentOut, "b.txt") {
		t.Errorf("Unexpected text path %q", tasks[1].TextPath)
	}
}

func TestAssignDevicesRoundRobin(t *testing.T) {
	tasks := make([]types.FolderTask, 3)
	AssignDevices(tasks, 2)

	var got []int
	for _, task := range tasks {
		got = append(got, task.Device)
	}
	if want := []int{0, 1, 0}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected devices %v, got %v", want, got)
	}
}

func TestProcessParentMissingInput(t *testing.T) {
	root := t.TempDir()
	parentOut := filepath.Join(root, "out")
	f := &recordingFactory{}

	err := newCoordinator(f.open).ProcessParent(context.Background(), filepath.Join(root, "missing"), parentOut)
	if err != nil {
		t.Fatalf("Missing parent must be a clean no-op, got %v", err)
	}
	if _, err := os.Stat(parentOut); !os.IsNotExist(err) {
		t.Error("No output folders should be created")
	}
	if f.opened != 0 {
		t.Error("No OCR engine should be started")
	}
}

func TestProcessParentSequential(t *testing.T) {
	parentIn, parentOut := makeParent(t, "one", "two")
	f := &recordingFactory{}
	c := newCoordinator(f.open)
	c.ExtractText = true

	var reports []types.FolderReport
	c.OnReport = func(r types.FolderReport) { reports = append(reports, r) }

	if err := c.ProcessParent(context.Background(), parentIn, parentOut); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"one", "two"} {
		if _, err := os.Stat(filepath.Join(parentOut, name, "img.png")); err != nil {
			t.Errorf("Missing mask for %s: %v", name, err)
		}
		data, err := os.ReadFile(filepath.Join(parentOut, name+".txt"))
		if err != nil || string(data) != "SALE" {
			t.Errorf("Unexpected text file for %s: %q, %v", name, data, err)
		}
	}
	if f.opened != 2 {
		t.Errorf("Expected one engine per folder, got %d", f.opened)
	}
	if !reflect.DeepEqual(f.devices, []int{-1, -1}) {
		t.Errorf("Sequential mode should inherit device visibility, got %v", f.devices)
	}
	if len(reports) != 2 || reports[0].Task.OutputDir != filepath.Join(parentOut, "one") {
		t.Errorf("Expected reports in discovery order, got %+v", reports)
	}
}

func TestProcessParentParallel(t *testing.T) {
	parentIn, parentOut := makeParent(t, "a", "b", "c")
	f := &recordingFactory{}
	c := newCoordinator(f.open)
	c.Parallel = true
	c.Enumerator = device.Static{{Index: 0}, {Index: 1}}

	var mu sync.Mutex
	byFolder := map[string]int{}
	c.OnReport = func(r types.FolderReport) {
		mu.Lock()
		defer mu.Unlock()
		byFolder[filepath.Base(r.Task.InputDir)] = r.Task.Device
	}

	if err := c.ProcessParent(context.Background(), parentIn, parentOut); err != nil {
		t.Fatal(err)
	}

	want := map[string]int{"a": 0, "b": 1, "c": 0}
	if !reflect.DeepEqual(byFolder, want) {
		t.Errorf("Expected assignment %v, got %v", want, byFolder)
	}
	got := append([]int(nil), f.devices...)
	sort.Ints(got)
	if !reflect.DeepEqual(got, []int{0, 0, 1}) {
		t.Errorf("Engines opened on unexpected devices %v", got)
	}
	for _, name := range []string{"a", "b", "c"} {
		if _, err := os.Stat(filepath.Join(parentOut, name, "img.png")); err != nil {
			t.Errorf("Missing mask for %s", name)
		}
	}
}

func TestProcessParentEnumerationFailure(t *testing.T) {
	parentIn, parentOut := makeParent(t, "a")
	f := &recordingFactory{}

	for _, e := range []device.Enumerator{failingEnumerator{}, device.Static{}} {
		c := newCoordinator(f.open)
		c.Parallel = true
		c.Enumerator = e
		if err := c.ProcessParent(context.Background(), parentIn, parentOut); err == nil {
			t.Errorf("Expected enumeration failure to propagate for %T", e)
		}
	}
	if f.opened != 0 {
		t.Error("No folder should be processed without devices")
	}
}

func TestProcessParentFailureIsolation(t *testing.T) {
	parentIn, parentOut := makeParent(t, "a", "b", "c")
	// A file squatting on b's output path makes that folder fail
	os.MkdirAll(parentOut, 0755)
	os.WriteFile(filepath.Join(parentOut, "b"), []byte("x"), 0644)

	f := &recordingFactory{}
	c := newCoordinator(f.open)
	var failed []string
	c.OnReport = func(r types.FolderReport) {
		if r.Err != nil {
			failed = append(failed, filepath.Base(r.Task.InputDir))
		}
	}

	if err := c.ProcessParent(context.Background(), parentIn, parentOut); err != nil {
		t.Fatalf("A failing folder must not fail the run: %v", err)
	}
	if !reflect.DeepEqual(failed, []string{"b"}) {
		t.Errorf("Expected only b to fail, got %v", failed)
	}
	for _, name := range []string{"a", "c"} {
		if _, err := os.Stat(filepath.Join(parentOut, name, "img.png")); err != nil {
			t.Errorf("Sibling %s was not processed", name)
		}
	}
}

func TestProcessParentEngineStartFailure(t *testing.T) {
	parentIn, parentOut := makeParent(t, "a", "b")
	calls := 0
	c := newCoordinator(func(context.Context, int, ocr.Settings) (ocr.Service, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("paddle import failed")
		}
		return fakeOCR{}, nil
	})

	var errs int
	c.OnReport = func(r types.FolderReport) {
		if r.Err != nil {
			errs++
		}
	}
	if err := c.ProcessParent(context.Background(), parentIn, parentOut); err != nil {
		t.Fatal(err)
	}
	if errs != 1 {
		t.Errorf("Expected 1 failed folder, got %d", errs)
	}
	if _, err := os.Stat(filepath.Join(parentOut, "b", "img.png")); err != nil {
		t.Error("Second folder should still be processed")
	}
}
