package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/menta2k/occupancy-tracker/pkg/processing"
	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// InferenceBackend uploads the frame to an HTTP inference server (for
// example a YOLO service) as a multipart "file" field
type InferenceBackend struct {
	name       string
	url        string
	classNames []string
	httpClient *http.Client
	processor  *processing.Processor
}

// inferenceBox is one box in the server's response. X and Y are the top-left
// corner in pixels.
type inferenceBox struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
	Class      string   `json:"class"`
	ClassID    *int     `json:"class_id"`
	Confidence *float64 `json:"confidence"`
}

// NewInferenceBackend creates a backend posting to endpoint. classNames
// resolves numeric class ids when the server does not return names.
func NewInferenceBackend(name, endpoint string, classNames []string) (*InferenceBackend, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid inference URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid scheme %q, must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid inference URL: missing host")
	}

	return &InferenceBackend{
		name:       name,
		url:        endpoint,
		classNames: classNames,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		processor:  processing.NewProcessor(),
	}, nil
}

// Name implements Backend
func (b *InferenceBackend) Name() string { return b.name }

// Predict implements Backend
func (b *InferenceBackend) Predict(ctx context.Context, in Input) (*ModelOutput, error) {
	data, filename, err := b.payload(in)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result struct {
		Detections []inferenceBox `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := &ModelOutput{
		Model:       b.name,
		ClassNames:  b.classNames,
		Predictions: make([]RawPrediction, 0, len(result.Detections)),
	}
	for _, d := range result.Detections {
		p := RawPrediction{
			ClassName: d.Class,
			ClassID:   -1,
			Box: types.Rect{
				X1: d.X,
				Y1: d.Y,
				X2: d.X + d.Width,
				Y2: d.Y + d.Height,
			},
			Confidence: d.Confidence,
		}
		if d.ClassID != nil {
			p.ClassID = *d.ClassID
		}
		out.Predictions = append(out.Predictions, p)
	}
	return out, nil
}

// payload returns the original file bytes when available, otherwise a JPEG
// encoding of the decoded image
func (b *InferenceBackend) payload(in Input) ([]byte, string, error) {
	if in.Path != "" {
		data, err := os.ReadFile(in.Path)
		if err == nil {
			return data, filepath.Base(in.Path), nil
		}
		if in.Image == nil {
			return nil, "", fmt.Errorf("read image: %w", err)
		}
	}
	if in.Image == nil {
		return nil, "", fmt.Errorf("no image")
	}
	data, err := b.processor.Encode(in.Image, "jpg", 95)
	if err != nil {
		return nil, "", fmt.Errorf("encode image: %w", err)
	}
	return data, "image.jpg", nil
}

// CheckHealth probes the server's /health endpoint
func (b *InferenceBackend) CheckHealth(ctx context.Context) error {
	u, err := url.Parse(b.url)
	if err != nil {
		return err
	}
	u.Path = "/health"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
