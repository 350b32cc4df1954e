// Package ocr defines the narrow interface text detection engines are consumed through.
package ocr

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/andresmejia3/textmask/internal/types"
)

// Service detects text regions in encoded image bytes.
// A Service is owned by one folder task and is not safe for concurrent use.
type Service interface {
	// Detect returns the text regions found in image. When classifyOrientation is set
	// the engine first corrects rotated text. Detections carry recognized text only
	// when the engine was opened with recognition enabled.
	Detect(ctx context.Context, image []byte, classifyOrientation bool) ([]types.Detection, error)
	Close() error
}

// Settings are the engine-independent knobs a Factory is opened with.
type Settings struct {
	Lang         string
	Recognize    bool // also return recognized text
	PythonBin    string
	WorkerScript string

	// Text detector tuning. Engines without a DB detector ignore these.
	DetScoreMode string // "slow" scores boxes by polygon, "fast" by bounding box; "" means slow
	DetDilation  bool   // dilate the detector's probability map before boxing
}

// Factory opens a Service bound to device. A negative device inherits the
// host's default accelerator visibility.
type Factory func(ctx context.Context, device int, s Settings) (Service, error)

var (
	mu      sync.RWMutex
	engines = map[string]Factory{}
)

// Register makes an engine available by name. It panics on duplicates.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := engines[name]; dup {
		panic("ocr: Register called twice for engine " + name)
	}
	engines[name] = f
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := engines[name]
	if !ok {
		return nil, fmt.Errorf("unknown OCR engine %q (available: %v)", name, namesLocked())
	}
	return f, nil
}

// Names lists the registered engines, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(engines))
	for n := range engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
