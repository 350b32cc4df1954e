package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseCSV(t *testing.T) {
	out := `0, GPU-11111111-2222-3333-4444-555555555555, NVIDIA A100-SXM4-40GB
1, GPU-aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee, NVIDIA GeForce RTX 3090, Founders

`
	devs, err := ParseCSV(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(devs) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(devs))
	}
	if devs[0].Index != 0 || devs[0].Name != "NVIDIA A100-SXM4-40GB" {
		t.Errorf("Unexpected first device: %+v", devs[0])
	}
	if devs[1].Index != 1 || devs[1].Name != "NVIDIA GeForce RTX 3090,Founders" {
		t.Errorf("Unexpected second device: %+v", devs[1])
	}
}

func TestParseCSVMalformed(t *testing.T) {
	tests := []string{
		"zero, GPU-1, Tesla\n",
		"0, GPU-1\n",
	}
	for _, in := range tests {
		if _, err := ParseCSV(strings.NewReader(in)); err == nil {
			t.Errorf("Expected error for %q", in)
		}
	}
}

func TestCount(t *testing.T) {
	n, err := Count(context.Background(), Static{{Index: 0}, {Index: 1}})
	if err != nil || n != 2 {
		t.Errorf("Count() = %d, %v; want 2, nil", n, err)
	}

	if _, err := Count(context.Background(), Static{}); !errors.Is(err, ErrNoDevices) {
		t.Errorf("Expected ErrNoDevices, got %v", err)
	}
}

func TestNvidiaSMIMissingBinary(t *testing.T) {
	_, err := NvidiaSMI{Bin: "definitely-not-nvidia-smi"}.List(context.Background())
	if err == nil {
		t.Fatal("Expected error when the enumeration tool is absent")
	}
}

func TestNvidiaSMIFakeBinary(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "nvidia-smi")
	body := "#!/bin/sh\necho '0, GPU-a, Fake GPU'\necho '1, GPU-b, Fake GPU'\n"
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}

	devs, err := NvidiaSMI{Bin: script}.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(devs) != 2 || devs[1].UUID != "GPU-b" {
		t.Errorf("Unexpected devices: %+v", devs)
	}
}
