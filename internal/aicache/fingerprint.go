package aicache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"tutorgate/internal/core"
)

// Fingerprint returns the cache key for a resolved request: a sha256 hex
// digest over a canonical serialization of the cache-relevant fields.
//
// The serialization writes fields in a fixed order with explicit labels and
// formats floats with the shortest round-trippable representation, so two
// requests that are logically identical always collide and any change to
// prompt, feature, model, temperature, max tokens, response format or
// prompt version produces a different key.
func Fingerprint(req *core.ResolvedRequest) string {
	var b strings.Builder

	writeField(&b, "prompt", req.Prompt)
	writeField(&b, "feature", string(req.FeatureType))
	writeField(&b, "model", req.Model)
	temp := ""
	if req.Temperature != nil {
		temp = strconv.FormatFloat(*req.Temperature, 'g', -1, 64)
	}
	writeField(&b, "temperature", temp)
	writeField(&b, "max_tokens", strconv.Itoa(req.MaxTokens))
	writeField(&b, "response_format", string(req.ResponseFormat))
	writeField(&b, "prompt_version", req.PromptVersion)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// writeField appends one length-prefixed labeled field. The length prefix
// keeps adjacent fields from aliasing each other ("ab"+"c" vs "a"+"bc").
func writeField(b *strings.Builder, label, value string) {
	b.WriteString(label)
	b.WriteByte('=')
	b.WriteString(strconv.Itoa(len(value)))
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte('\n')
}
