// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package approaches

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"
)

// ErrUnsupportedContentType is returned when a message carries content the
// token counter cannot encode (e.g. a multimodal part of an unknown type).
// Callers must surface it unmodified; it is never retried.
var ErrUnsupportedContentType = errors.New("could not encode unsupported message content type")

// modelTokenLimits maps chat model names (Azure and OpenAI spellings) to the
// context window reserved for prompt assembly.
var modelTokenLimits = map[string]int{
	"gpt-35-turbo":      4000,
	"gpt-3.5-turbo":     4000,
	"gpt-35-turbo-16k":  16000,
	"gpt-3.5-turbo-16k": 16000,
	"gpt-4":             8100,
	"gpt-4-32k":         32000,
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
}

// Image token accounting per the OpenAI vision pricing model: a fixed base
// cost plus a per-512px-tile cost for high detail images.
const (
	imageDetailLowTokens = 85
	imageBaseTokens      = 85
	imageTokensPerTile   = 170
	imageTileSize        = 512
)

// GetTokenLimit returns the prompt token budget for the given chat model.
//
// # Description
//
// Looks up the context window for a chat model. Both Azure deployment
// spellings (gpt-35-turbo) and OpenAI spellings (gpt-3.5-turbo) are accepted.
//
// # Inputs
//
//   - model: Chat model name, e.g. "gpt-4" or "gpt-35-turbo-16k".
//
// # Outputs
//
//   - int: Token budget for prompt assembly.
//   - error: Non-nil for unknown or pre-chat models.
func GetTokenLimit(model string) (int, error) {
	limit, ok := modelTokenLimits[model]
	if !ok {
		return 0, fmt.Errorf("expected model gpt-35-turbo and above, got %q", model)
	}
	return limit, nil
}

// chatModelForTiktoken normalizes Azure deployment names to the OpenAI model
// names tiktoken knows about (gpt-35-turbo -> gpt-3.5-turbo).
func chatModelForTiktoken(model string) (string, error) {
	if model == "" || !strings.HasPrefix(model, "gpt-") || model == "gpt-3" {
		return "", fmt.Errorf("expected OpenAI chat model name, got %q", model)
	}
	return strings.Replace(model, "gpt-35", "gpt-3.5", 1), nil
}

// NumTokensFromMessages estimates the token cost of a single chat message.
//
// # Description
//
// Computes the cost the completion service will charge for one message:
// a fixed 2-token overhead for the role and content keys, plus the encoded
// role name, plus the encoded content. For multimodal content, text parts
// are encoded normally and image parts are charged the detail-dependent
// image cost (85 tokens for low detail; 85 + 170 per 512px tile otherwise).
//
// # Inputs
//
//   - message: The chat message to price. Either Content or MultiContent
//     may be populated.
//   - model: Chat model name deciding the encoding.
//
// # Outputs
//
//   - int: Estimated token count.
//   - error: ErrUnsupportedContentType (wrapped) for content shapes the
//     encoder cannot handle; encoding setup errors otherwise.
//
// # Limitations
//
//   - Image dimensions are only recovered from base64 data URLs; remote
//     image URLs are priced as a single tile.
func NumTokensFromMessages(message openai.ChatCompletionMessage, model string) (int, error) {
	tiktokenModel, err := chatModelForTiktoken(model)
	if err != nil {
		return 0, err
	}
	encoder, err := tiktoken.EncodingForModel(tiktokenModel)
	if err != nil {
		return 0, fmt.Errorf("load encoding for %s: %w", tiktokenModel, err)
	}

	// 2 tokens for the "role" and "content" keys.
	numTokens := 2
	numTokens += len(encoder.Encode(message.Role, nil, nil))

	if len(message.MultiContent) > 0 {
		for _, part := range message.MultiContent {
			switch part.Type {
			case openai.ChatMessagePartTypeText:
				numTokens += len(encoder.Encode(part.Text, nil, nil))
			case openai.ChatMessagePartTypeImageURL:
				if part.ImageURL == nil {
					return 0, fmt.Errorf("image part without URL: %w", ErrUnsupportedContentType)
				}
				numTokens += imageTokenCost(part.ImageURL)
			default:
				return 0, fmt.Errorf("message part type %q: %w", part.Type, ErrUnsupportedContentType)
			}
		}
		return numTokens, nil
	}

	numTokens += len(encoder.Encode(message.Content, nil, nil))
	return numTokens, nil
}

// imageTokenCost prices one image part by detail level and tile count.
func imageTokenCost(img *openai.ChatMessageImageURL) int {
	if img.Detail == openai.ImageURLDetailLow {
		return imageDetailLowTokens
	}
	return imageBaseTokens + imageTokensPerTile*imageTileCount(img.URL)
}

// imageTileCount returns how many 512px tiles the image occupies. Dimensions
// are decoded from base64 data URLs; anything else counts as one tile.
func imageTileCount(url string) int {
	const dataPrefix = "base64,"
	idx := strings.Index(url, dataPrefix)
	if idx < 0 {
		return 1
	}
	raw, err := base64.StdEncoding.DecodeString(url[idx+len(dataPrefix):])
	if err != nil {
		return 1
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return 1
	}
	tilesWide := (cfg.Width + imageTileSize - 1) / imageTileSize
	tilesHigh := (cfg.Height + imageTileSize - 1) / imageTileSize
	if tilesWide < 1 {
		tilesWide = 1
	}
	if tilesHigh < 1 {
		tilesHigh = 1
	}
	return tilesWide * tilesHigh
}
