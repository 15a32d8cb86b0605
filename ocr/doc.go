// Package ocr plugs optical character recognition into charter extraction.
// Scanned recaps often carry each page as a single image; the pipeline hands
// those images to an Engine and turns the recognised lines back into
// extractor lines. Recognised text carries no colour or strike marks, so every
// OCR line reads as original text.
package ocr
