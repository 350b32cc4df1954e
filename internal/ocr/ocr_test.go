package ocr

import (
	"context"
	"strings"
	"testing"

	"github.com/andresmejia3/textmask/internal/types"
)

type stubService struct{ device int }

func (s *stubService) Detect(context.Context, []byte, bool) ([]types.Detection, error) {
	return nil, nil
}
func (s *stubService) Close() error { return nil }

func TestRegistry(t *testing.T) {
	Register("stub-test", func(_ context.Context, device int, _ Settings) (Service, error) {
		return &stubService{device: device}, nil
	})

	f, err := Lookup("stub-test")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	svc, err := f(context.Background(), 3, Settings{})
	if err != nil {
		t.Fatal(err)
	}
	if svc.(*stubService).device != 3 {
		t.Error("Factory did not receive the device index")
	}

	found := false
	for _, n := range Names() {
		if n == "stub-test" {
			found = true
		}
	}
	if !found {
		t.Errorf("Names() = %v, missing stub-test", Names())
	}

	_, err = Lookup("nope")
	if err == nil || !strings.Contains(err.Error(), "stub-test") {
		t.Errorf("Expected unknown-engine error listing engines, got %v", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	f := func(context.Context, int, Settings) (Service, error) { return nil, nil }
	Register("dup-test", f)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate registration")
		}
	}()
	Register("dup-test", f)
}
