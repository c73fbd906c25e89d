package client

import (
	"context"
)

// VisionClient is a multimodal chat backend. Both calls take a raw base64
// image (no data: prefix) and return the model's text reply.
type VisionClient interface {
	// SimpleQuery asks a free-form question about the image
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	// ClassifyImage asks for a JSON object reply
	ClassifyImage(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
