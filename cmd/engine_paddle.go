package cmd

// Registers the default PaddleOCR subprocess engine.
import _ "github.com/andresmejia3/textmask/internal/worker"
