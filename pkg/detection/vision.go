package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/occupancy-tracker/pkg/client"
	"github.com/menta2k/occupancy-tracker/pkg/processing"
	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// DefaultPrompt asks a vision model to list people and furniture
const DefaultPrompt = `You are an object detector for photos of a co-working room.

Return JSON only:
{
  "objects": [
    {"label": "person", "confidence": 0.0, "box": [x1, y1, x2, y2]}
  ]
}

HARD RULES
- Report every person, every table and every bean bag you can see. Use the labels "person", "table" or "bean bag".
- box is [left, top, right, bottom] normalized to [0,1] (NOT pixels), with left < right and top < bottom.
- confidence is your certainty in [0,1].
- If nothing is found, return {"objects": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// VisionBackend prompts a chat-style vision model for object boxes
type VisionBackend struct {
	name      string
	client    client.VisionClient
	processor *processing.Processor
	model     string
	prompt    string
	sendSize  int
	sendQ     int
}

// NewVisionBackend creates a backend for model served by c. sendSize caps the
// long side of the uploaded image (0 keeps the original size).
func NewVisionBackend(name string, c client.VisionClient, model string, sendSize int) *VisionBackend {
	return &VisionBackend{
		name:      name,
		client:    c,
		processor: processing.NewProcessor(),
		model:     model,
		prompt:    DefaultPrompt,
		sendSize:  sendSize,
		sendQ:     85,
	}
}

// WithPrompt overrides the detection prompt
func (b *VisionBackend) WithPrompt(prompt string) *VisionBackend {
	if prompt != "" {
		b.prompt = prompt
	}
	return b
}

// Name implements Backend
func (b *VisionBackend) Name() string { return b.name }

// Predict implements Backend
func (b *VisionBackend) Predict(ctx context.Context, in Input) (*ModelOutput, error) {
	if in.Image == nil {
		return nil, fmt.Errorf("no image")
	}
	imgB64, scale, err := b.processor.PrepareImageForModel(in.Image, "jpg", b.sendSize, b.sendQ)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	raw, err := b.client.QueryJSON(ctx, b.model, b.prompt, imgB64)
	if err != nil {
		return nil, err
	}

	bounds := in.Image.Bounds()
	preds, err := parseVisionObjects(raw, float64(bounds.Dx()), float64(bounds.Dy()), scale)
	if err != nil {
		return nil, err
	}
	return &ModelOutput{Model: b.name, Predictions: preds}, nil
}

// CheckHealth implements HealthChecker
func (b *VisionBackend) CheckHealth(ctx context.Context) error {
	return b.client.Ping(ctx)
}

type visionObject struct {
	Label      string    `json:"label"`
	Confidence *float64  `json:"confidence"`
	Box        []float64 `json:"box"`
}

type visionReply struct {
	Objects []visionObject `json:"objects"`
}

// normalizedSlack lets normalized boxes overshoot [0,1] slightly, which
// models do at the frame edge
const normalizedSlack = 0.05

// parseVisionObjects decodes a model reply. Boxes whose coordinates all lie
// within [0,1] give or take normalizedSlack are treated as normalized;
// anything else as pixels in the (possibly downscaled) image that was sent,
// multiplied back by scale. Boxes with no area inside the frame are dropped.
func parseVisionObjects(raw string, width, height, scale float64) ([]RawPrediction, error) {
	raw = sanitizeModelJSON(raw)

	var reply visionReply
	switch {
	case strings.HasPrefix(raw, "["):
		if err := json.Unmarshal([]byte(raw), &reply.Objects); err != nil {
			return nil, fmt.Errorf("failed to parse model response: %w", err)
		}
	case strings.HasPrefix(raw, "{"):
		if err := json.Unmarshal([]byte(raw), &reply); err != nil {
			return nil, fmt.Errorf("failed to parse model response: %w", err)
		}
	default:
		return nil, fmt.Errorf("model returned non-JSON response")
	}

	preds := make([]RawPrediction, 0, len(reply.Objects))
	for _, o := range reply.Objects {
		if len(o.Box) != 4 || o.Label == "" {
			continue
		}
		x1, y1, x2, y2 := o.Box[0], o.Box[1], o.Box[2], o.Box[3]
		if x1 > x2 {
			x1, x2 = x2, x1
		}
		if y1 > y2 {
			y1, y2 = y2, y1
		}

		if x1 >= -normalizedSlack && y1 >= -normalizedSlack && x2 <= 1+normalizedSlack && y2 <= 1+normalizedSlack {
			x1, x2 = x1*width, x2*width
			y1, y2 = y1*height, y2*height
		} else {
			x1, x2 = x1*scale, x2*scale
			y1, y2 = y1*scale, y2*scale
		}

		box := types.Rect{
			X1: clamp(x1, 0, width),
			Y1: clamp(y1, 0, height),
			X2: clamp(x2, 0, width),
			Y2: clamp(y2, 0, height),
		}
		if box.X2 <= box.X1 || box.Y2 <= box.Y1 {
			continue
		}
		preds = append(preds, RawPrediction{
			ClassName:  o.Label,
			Box:        box,
			Confidence: o.Confidence,
		})
	}
	return preds, nil
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)\s//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost object or array
	if start := strings.IndexAny(raw, "{["); start >= 0 {
		closer := "}"
		if raw[start] == '[' {
			closer = "]"
		}
		if end := strings.LastIndex(raw, closer); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
