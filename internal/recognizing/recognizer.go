package recognizing

// Recognizer defines the interface for OCR text recognition backends. A
// backend receives a receipt image (or PDF) and returns the raw recognized
// text; interpretation of that text is the extraction engine's job.
type Recognizer interface {
	// RecognizeText runs OCR on the image and returns the recognized text
	RecognizeText(imageData []byte, contentType string) (string, error)
	// Close closes the recognizer and releases resources
	Close() error
}
