package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Point is a polygon vertex in pixel space. On the wire it is a two element array [x, y].
type Point struct {
	X float64
	Y float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var xy []float64
	if err := json.Unmarshal(data, &xy); err != nil {
		return err
	}
	if len(xy) != 2 {
		return fmt.Errorf("point must have 2 coordinates, got %d", len(xy))
	}
	p.X, p.Y = xy[0], xy[1]
	return nil
}

// Detection matches the JSON structure coming back from the OCR worker
type Detection struct {
	Polygon    []Point `json:"poly"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"conf,omitempty"`
}

// FolderTask is one child folder handed to a worker.
type FolderTask struct {
	Index     int
	InputDir  string
	OutputDir string
	TextPath  string // empty when text extraction is off
	Device    int    // -1 inherits the host's device visibility
}

// FolderReport summarises what happened to a single FolderTask.
type FolderReport struct {
	Task      FolderTask
	Images    int
	Masks     int
	Failures  int
	TextLines int
	Duration  time.Duration
	Err       error
}

// ErrorResult captures the error object returned by Python on failure
type ErrorResult struct {
	Error string `json:"error"`
}
