package worker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/andresmejia3/textmask/internal/ocr"
	"github.com/andresmejia3/textmask/internal/types"
	"github.com/andresmejia3/textmask/internal/utils" // Using the SafeCommand wrapper
)

var (
	// ErrWorkerDied means the OCR process is gone or the pipe is out of sync.
	// Every later call would fail the same way, so callers treat it as fatal.
	ErrWorkerDied = errors.New("ocr worker died")
	// ErrWorkerReported means the worker rejected one image but is still usable.
	ErrWorkerReported = errors.New("ocr worker reported an error")
)

const (
	flagClassify  byte = 1 << 0
	flagRecognize byte = 1 << 1

	statusOK    byte = 0
	statusError byte = 1

	stderrTail = 4096
)

func init() {
	ocr.Register("paddle", func(ctx context.Context, device int, s ocr.Settings) (ocr.Service, error) {
		return NewPaddleWorker(ctx, device, s)
	})
}

// PaddleWorker drives one long-lived PaddleOCR Python process.
type PaddleWorker struct {
	Device    int
	Cmd       *utils.SafeCommand
	Stdin     io.WriteCloser
	DataPipe  io.ReadCloser
	Recognize bool

	closeOnce sync.Once
	closeErr  error
}

// NewPaddleWorker launches the worker script bound to device. The device is exposed to
// the child through its own environment only; the parent's environment is never touched.
func NewPaddleWorker(ctx context.Context, device int, s ocr.Settings) (*PaddleWorker, error) {
	python := s.PythonBin
	if python == "" {
		python = "python3"
	}
	script := s.WorkerScript
	if script == "" {
		script = "python/ocr_worker.py"
	}

	// 1. Initialize the SafeCommand
	py := utils.NewSafeCommand(ctx, python, workerArgs(script, device, s)...)
	// A negative device leaves CUDA_VISIBLE_DEVICES as inherited; the worker
	// still uses the GPU when one is visible.
	py.Env = os.Environ()
	if device >= 0 {
		py.Env = append(py.Env, "CUDA_VISIBLE_DEVICES="+strconv.Itoa(device))
	}

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("ocr worker for device %d failed to start: %w", device, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PaddleWorker{
		Device:    device,
		Cmd:       py,
		Stdin:     stdin,
		DataPipe:  r,
		Recognize: s.Recognize,
	}, nil
}

// workerArgs builds the interpreter arguments for the worker script.
func workerArgs(script string, device int, s ocr.Settings) []string {
	lang := s.Lang
	if lang == "" {
		lang = "ch"
	}
	mode := s.DetScoreMode
	if mode == "" {
		mode = "slow"
	}
	return []string{
		"-u", script,
		"--lang", lang,
		"--device", strconv.Itoa(device),
		"--det-db-score-mode", mode,
		"--use-dilation", strconv.FormatBool(s.DetDilation),
	}
}

// Detect sends one encoded image and waits for its detections.
func (w *PaddleWorker) Detect(ctx context.Context, image []byte, classifyOrientation bool) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var flags byte
	if classifyOrientation {
		flags |= flagClassify
	}
	if w.Recognize {
		flags |= flagRecognize
	}

	// Protocol: [Length][Flags][Image]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(image)+1)); err != nil {
		return nil, w.died("write request", err)
	}
	if _, err := w.Stdin.Write([]byte{flags}); err != nil {
		return nil, w.died("write request", err)
	}
	if _, err := w.Stdin.Write(image); err != nil {
		return nil, w.died("write request", err)
	}

	// Read Result: [Length][Status][Body]
	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, w.died("read response header", err) // This is where we catch import errors
	}
	respLen := binary.BigEndian.Uint32(header)
	if respLen == 0 {
		return nil, w.died("read response", errors.New("empty frame"))
	}
	resp := make([]byte, respLen)
	if _, err := io.ReadFull(w.DataPipe, resp); err != nil {
		return nil, w.died("read response body", err)
	}

	status, body := resp[0], resp[1:]
	switch status {
	case statusOK:
		var dets []types.Detection
		if err := json.Unmarshal(body, &dets); err != nil {
			return nil, fmt.Errorf("%w: malformed detections: %v", ErrWorkerReported, err)
		}
		return dets, nil
	case statusError:
		var errorResult types.ErrorResult
		if err := json.Unmarshal(body, &errorResult); err != nil || errorResult.Error == "" {
			return nil, fmt.Errorf("%w: %s", ErrWorkerReported, strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("%w: %s", ErrWorkerReported, errorResult.Error)
	default:
		return nil, w.died("read response", fmt.Errorf("unknown status byte %d", status))
	}
}

// died drains the process so its stderr is complete, then builds a transport error.
func (w *PaddleWorker) died(op string, cause error) error {
	if w.Cmd == nil {
		return fmt.Errorf("%w: %s: %v", ErrWorkerDied, op, cause)
	}
	w.Close()
	if tail := strings.TrimSpace(w.Cmd.StderrTail(stderrTail)); tail != "" {
		return fmt.Errorf("%w: %s: %v\n%s", ErrWorkerDied, op, cause, tail)
	}
	return fmt.Errorf("%w: %s: %v", ErrWorkerDied, op, cause)
}

// Close ends the session: closing stdin tells the worker to exit, then we reap it.
func (w *PaddleWorker) Close() error {
	w.closeOnce.Do(func() {
		w.Stdin.Close()
		w.DataPipe.Close()
		if w.Cmd != nil {
			w.closeErr = w.Cmd.Wait()
		}
	})
	return w.closeErr
}
