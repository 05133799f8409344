package ocr

import "context"

// Provider turns an image into recognized text. Clients normally run
// on-device recognition and send text directly; this boundary lets a
// hosted engine handle images uploaded as a fallback.
type Provider interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Static always returns the same text. It stands in where no engine is
// configured and in tests.
type Static struct {
	Text string
}

func (s Static) Recognize(context.Context, []byte) (string, error) {
	return s.Text, nil
}
