package client

import (
	"context"
)

// VisionClient is a chat-style vision model endpoint. QueryJSON asks the
// backend to constrain its reply to JSON; the caller still sanitizes it.
type VisionClient interface {
	QueryJSON(ctx context.Context, model, prompt, imgB64 string) (string, error)
	Ping(ctx context.Context) error
}
