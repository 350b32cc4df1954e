// Package fanout spreads the child folders of a parent folder over OCR workers.
package fanout

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/andresmejia3/textmask/internal/device"
	"github.com/andresmejia3/textmask/internal/ocr"
	"github.com/andresmejia3/textmask/internal/processor"
	"github.com/andresmejia3/textmask/internal/types"
	"github.com/andresmejia3/textmask/internal/utils"
	"go.uber.org/zap"
)

// Coordinator discovers child folders and runs each one through the processor.
type Coordinator struct {
	Engine   ocr.Factory
	Settings ocr.Settings
	// Enumerator is only consulted in parallel mode.
	Enumerator  device.Enumerator
	Parallel    bool
	ExtractText bool
	// Device pins sequential mode to one device; -1 inherits the host's visibility.
	Device  int
	Options processor.Options
	Logger  *zap.SugaredLogger
	// OnReport is called once per finished task, always from the same goroutine.
	OnReport func(types.FolderReport)
	// Out receives the end-of-run summary. Defaults to os.Stderr.
	Out io.Writer
}

// Discover turns every directory under parentIn into a FolderTask, in listing order.
func Discover(parentIn, parentOut string, extractText bool) ([]types.FolderTask, error) {
	names, err := utils.ListSubdirs(parentIn)
	if err != nil {
		return nil, err
	}
	tasks := make([]types.FolderTask, 0, len(names))
	for i, name := range names {
		t := types.FolderTask{
			Index:     i,
			InputDir:  filepath.Join(parentIn, name),
			OutputDir: filepath.Join(parentOut, name),
			Device:    -1,
		}
		if extractText {
			t.TextPath = utils.TextPathFor(t.OutputDir)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// AssignDevices gives task i the device i mod n.
func AssignDevices(tasks []types.FolderTask, n int) {
	for i := range tasks {
		tasks[i].Device = i % n
	}
}

// ProcessParent processes every child folder of parentIn into parentOut.
// A missing parentIn is reported and treated as nothing to do. Only device
// enumeration failures are returned; a failing folder never stops its siblings.
func (c *Coordinator) ProcessParent(ctx context.Context, parentIn, parentOut string) error {
	log := c.logger()

	if !utils.DirExists(parentIn) {
		log.Warnw("Parent input folder does not exist, nothing to do", "path", parentIn)
		return nil
	}

	tasks, err := Discover(parentIn, parentOut, c.ExtractText)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", parentIn, err)
	}
	if len(tasks) == 0 {
		log.Infow("No child folders found", "path", parentIn)
		return nil
	}

	numWorkers := 1
	if c.Parallel {
		n, err := device.Count(ctx, c.Enumerator)
		if err != nil {
			return fmt.Errorf("device enumeration failed: %w", err)
		}
		AssignDevices(tasks, n)
		numWorkers = n
		fmt.Fprintf(c.out(), "⚙️  Spreading %d folders over %d devices...\n", len(tasks), n)
	} else {
		for i := range tasks {
			tasks[i].Device = c.Device
		}
	}

	opts := c.Options
	opts.Logger = log
	if numWorkers > 1 {
		// Concurrent bars would interleave on one terminal
		opts.Progress = io.Discard
	}

	taskChan := make(chan types.FolderTask, len(tasks))
	resultsChan := make(chan types.FolderReport, numWorkers*2)
	var wg sync.WaitGroup

	// Start Aggregator (Consumer)
	// Must run concurrently to prevent deadlock on resultsChan
	aggDone := make(chan struct{})
	go func() {
		c.collect(resultsChan)
		close(aggDone)
	}()

	// Spawn the pool, one goroutine per device
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskChan {
				resultsChan <- c.runTask(ctx, task, opts)
			}
		}()
	}

	for _, t := range tasks {
		taskChan <- t
	}
	close(taskChan)
	wg.Wait()
	close(resultsChan)

	<-aggDone
	return nil
}

// runTask owns one OCR service for the lifetime of one folder.
func (c *Coordinator) runTask(ctx context.Context, task types.FolderTask, opts processor.Options) types.FolderReport {
	log := c.logger().With("folder", task.InputDir, "device", task.Device)
	start := time.Now()

	svc, err := c.Engine(ctx, task.Device, c.Settings)
	if err != nil {
		err = fmt.Errorf("failed to start OCR engine: %w", err)
		log.Errorw("Folder failed", "error", err)
		return types.FolderReport{Task: task, Duration: time.Since(start), Err: err}
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Debugw("OCR engine exited uncleanly", "error", err)
		}
	}()

	report, err := processor.ProcessFolder(ctx, task, svc, opts)
	if err != nil {
		log.Errorw("Folder failed", "error", err)
	} else {
		log.Infow("Folder done", "masks", report.Masks, "failures", report.Failures, "elapsed", report.Duration.Round(time.Millisecond))
	}
	return report
}

func (c *Coordinator) collect(results <-chan types.FolderReport) {
	var folders, failed, masks, failures, lines int
	for r := range results {
		folders++
		masks += r.Masks
		failures += r.Failures
		lines += r.TextLines
		if r.Err != nil {
			failed++
		}
		if c.OnReport != nil {
			c.OnReport(r)
		}
	}

	out := c.out()
	fmt.Fprintf(out, "\n---------------------------------------------------------\n")
	fmt.Fprintf(out, "📊 MASK SUMMARY\n")
	fmt.Fprintf(out, "---------------------------------------------------------\n")
	fmt.Fprintf(out, "📁 Folders:          %d (%d failed)\n", folders, failed)
	fmt.Fprintf(out, "🖼️  Masks Written:    %d\n", masks)
	fmt.Fprintf(out, "⚠️  Skipped Images:   %d\n", failures)
	if c.ExtractText {
		fmt.Fprintf(out, "📝 Unique Lines:     %d\n", lines)
	}
	fmt.Fprintf(out, "---------------------------------------------------------\n")
}

func (c *Coordinator) logger() *zap.SugaredLogger {
	if c.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return c.Logger
}

func (c *Coordinator) out() io.Writer {
	if c.Out == nil {
		return os.Stderr
	}
	return c.Out
}
