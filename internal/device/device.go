// Package device enumerates accelerator devices for the parallel fan-out.
package device

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/andresmejia3/textmask/internal/utils"
)

// ErrNoDevices means enumeration worked but reported zero accelerators.
// It is a configuration error; callers must not fall back to CPU silently.
var ErrNoDevices = errors.New("no accelerator devices found")

// Device is one enumerated accelerator.
type Device struct {
	Index int
	UUID  string
	Name  string
}

// Enumerator lists the accelerators visible to this host.
type Enumerator interface {
	List(ctx context.Context) ([]Device, error)
}

// Count returns how many devices e reports, failing with ErrNoDevices when there are none.
func Count(ctx context.Context, e Enumerator) (int, error) {
	devs, err := e.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(devs) == 0 {
		return 0, ErrNoDevices
	}
	return len(devs), nil
}

// NvidiaSMI enumerates NVIDIA GPUs by shelling out to nvidia-smi.
type NvidiaSMI struct {
	// Bin overrides the nvidia-smi executable (default "nvidia-smi").
	Bin string
}

// List runs nvidia-smi and parses its CSV output.
func (n NvidiaSMI) List(ctx context.Context) ([]Device, error) {
	bin := n.Bin
	if bin == "" {
		bin = "nvidia-smi"
	}
	// 0. Check dependency
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%s not found, cannot enumerate devices: %w", bin, err)
	}

	cmd := utils.NewSafeCommand(ctx, bin, "--query-gpu=index,uuid,name", "--format=csv,noheader")
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(cmd.Stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", bin, err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", bin, err)
	}
	return ParseCSV(strings.NewReader(string(out)))
}

// ParseCSV parses `nvidia-smi --query-gpu=index,uuid,name --format=csv,noheader` output.
func ParseCSV(r io.Reader) ([]Device, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	var devs []Device
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed device list: %w", err)
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("malformed device line %q: expected index, uuid, name", strings.Join(rec, ","))
		}
		idx, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("malformed device index %q: %w", rec[0], err)
		}
		devs = append(devs, Device{
			Index: idx,
			UUID:  strings.TrimSpace(rec[1]),
			// GPU names may contain commas
			Name: strings.TrimSpace(strings.Join(rec[2:], ",")),
		})
	}
	return devs, nil
}

// Static is a fixed device list for callers that already know their devices.
type Static []Device

func (s Static) List(context.Context) ([]Device, error) { return s, nil }
