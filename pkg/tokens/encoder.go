package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used for models tiktoken does not know. cl100k_base
// is a close match for most current chat models.
const fallbackEncoding = "cl100k_base"

// EncoderEstimator counts tokens exactly using tiktoken's BPE encodings.
// Encoders are cached per model; unknown models fall back to cl100k_base.
type EncoderEstimator struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

// NewEncoderEstimator creates a tiktoken-backed estimator.
func NewEncoderEstimator() *EncoderEstimator {
	return &EncoderEstimator{
		encoders: make(map[string]*tiktoken.Tiktoken),
	}
}

// EstimateText counts the tokens in text under the model's encoding.
func (e *EncoderEstimator) EstimateText(text string, model string) (int, error) {
	if text == "" {
		return 0, nil
	}

	enc, err := e.encoderFor(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// encoderFor returns the cached encoder for the model, creating it if
// needed.
func (e *EncoderEstimator) encoderFor(model string) (*tiktoken.Tiktoken, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.encoders[model]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("no encoding for model %q: %w", model, err)
		}
	}
	e.encoders[model] = enc
	return enc, nil
}
