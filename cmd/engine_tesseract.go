//go:build tesseract

package cmd

// Registers the in-process Tesseract engine. Build with -tags tesseract (needs libtesseract).
import _ "github.com/andresmejia3/textmask/internal/ocr/tesseract"
