package recognizing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// OCRSpace implements the Recognizer interface using the OCR.space REST API
type OCRSpace struct {
	baseURL  string
	apiKey   string
	language string
	client   *http.Client
}

// NewOCRSpace creates a new OCRSpace Recognizer instance. The language code
// follows OCR.space's three-letter scheme ("spa", "eng", ...); it defaults to
// Spanish to match the receipt label vocabulary the extraction engine knows.
func NewOCRSpace(baseURL, apiKey, language string) (*OCRSpace, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ocr.space api key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.ocr.space"
	}
	if language == "" {
		language = "spa"
	}

	return &OCRSpace{
		baseURL:  baseURL,
		apiKey:   apiKey,
		language: language,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// ocrSpaceResponse represents the relevant portion of an OCR.space parse
// response. Only the first parsed result's text is consumed.
type ocrSpaceResponse struct {
	ParsedResults []struct {
		ParsedText        string `json:"ParsedText"`
		FileParseExitCode int    `json:"FileParseExitCode"`
	} `json:"ParsedResults"`
	OCRExitCode           int  `json:"OCRExitCode"`
	IsErroredOnProcessing bool `json:"IsErroredOnProcessing"`
	// ErrorMessage is a string or an array of strings depending on the failure
	ErrorMessage json.RawMessage `json:"ErrorMessage"`
}

// RecognizeText uploads the image to OCR.space and returns the recognized text
func (o *OCRSpace) RecognizeText(imageData []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Normalize PDFs and phone formats to PNG before upload
	finalImageData, _, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return "", err
	}

	// Build the multipart form the API expects: apikey, language, file
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("apikey", o.apiKey); err != nil {
		return "", fmt.Errorf("writing apikey field: %w", err)
	}
	if err := writer.WriteField("language", o.language); err != nil {
		return "", fmt.Errorf("writing language field: %w", err)
	}
	part, err := writer.CreateFormFile("file", "receipt.png")
	if err != nil {
		return "", fmt.Errorf("creating file field: %w", err)
	}
	if _, err := part.Write(finalImageData); err != nil {
		return "", fmt.Errorf("writing file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing multipart writer: %w", err)
	}

	url := fmt.Sprintf("%s/parse/image", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ocr.space API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ocr.space API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed ocrSpaceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if parsed.IsErroredOnProcessing {
		return "", fmt.Errorf("ocr.space processing error: %s", string(parsed.ErrorMessage))
	}
	if len(parsed.ParsedResults) == 0 {
		return "", fmt.Errorf("ocr.space returned no parsed results")
	}

	return parsed.ParsedResults[0].ParsedText, nil
}

// Close closes the OCRSpace client (no-op for HTTP client)
func (o *OCRSpace) Close() error {
	return nil
}
