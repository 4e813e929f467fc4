package catalog

import (
	"fmt"

	"github.com/deepshark/deepshark-backend/internal/models"
)

// defaultEntries returns the built-in model table. Costs mirror the
// production pricing sheet; adapters encode each model's payload quirks.
func defaultEntries(video VideoPricing) []*Entry {
	return []*Entry{
		// Text-to-image models
		textToImage("fal-ai/gpt-image-1.5", 2),
		textToImage("fal-ai/gpt-image-1.5/edit", 3),
		textToImage("seedream-v4", 3),
		textToImage("flux-dev", 7),
		textToImage("recraft-v3", 4),
		textToImage("minimax-image-01", 1),
		textToImage("ideogram-v3", 8),
		textToImage("luma-photon", 2),

		// Background removal: Bria only accepts image_url.
		{
			ID:   "fal-ai/bria/background/remove",
			Tool: ToolBgRemove,
			Cost: flatCost(2),
			Adapt: func(input Input) (map[string]interface{}, error) {
				src := stringField(input, "image_url", "image")
				if src == "" {
					return nil, models.NewMissingInputError("image")
				}
				return map[string]interface{}{"image_url": src}, nil
			},
			Extract: extractImage,
		},

		// Inpainting: premium Flux LoRA model.
		{
			ID:   "fal-ai/flux-lora/inpainting",
			Tool: ToolInpaint,
			Cost: flatCost(8),
			Adapt: func(input Input) (map[string]interface{}, error) {
				src := stringField(input, "image_url", "image")
				if src == "" {
					return nil, models.NewMissingInputError("image")
				}
				mask := stringField(input, "mask_url", "mask")
				if mask == "" {
					return nil, models.NewMissingInputError("mask")
				}
				prompt := stringField(input, "prompt")
				if prompt == "" {
					return nil, models.NewMissingInputError("prompt")
				}
				return map[string]interface{}{
					"image_url":  src,
					"mask_url":   mask,
					"prompt":     prompt,
					"num_images": 1,
				}, nil
			},
			Extract: extractImage,
		},

		// Upscalers: three backends with distinct payload shapes.
		{
			ID:   "fal-ai/clarity-upscaler",
			Tool: ToolUpscale,
			Cost: flatCost(2),
			Adapt: func(input Input) (map[string]interface{}, error) {
				src := sourceImage(input)
				if src == "" {
					return nil, models.NewMissingInputError("image")
				}
				return map[string]interface{}{
					"image_url":             src,
					"upscale_factor":        floatFieldDefault(input, 2, "scale"),
					"prompt":                "masterpiece, best quality, highres",
					"creativity":            floatFieldDefault(input, 0.35, "creativity"),
					"resemblance":           0.6,
					"guidance_scale":        4,
					"num_inference_steps":   18,
					"enable_safety_checker": true,
				}, nil
			},
			Extract: extractImage,
		},
		{
			ID:      "fal-ai/topaz/upscale/image",
			Tool:    ToolUpscale,
			Aliases: []string{"fal-ai/topaz/Upscale/image"},
			Cost:    flatCost(2),
			Adapt: func(input Input) (map[string]interface{}, error) {
				src := sourceImage(input)
				if src == "" {
					return nil, models.NewMissingInputError("image")
				}
				return map[string]interface{}{
					"image_url":        src,
					"model":            "Standard V2",
					"upscale_factor":   floatFieldDefault(input, 2, "scale"),
					"output_format":    "jpeg",
					"face_enhancement": true,
				}, nil
			},
			Extract: extractImage,
		},
		{
			ID:   "fal-ai/seedvr/upscale/image",
			Tool: ToolUpscale,
			Cost: flatCost(2),
			Adapt: func(input Input) (map[string]interface{}, error) {
				src := sourceImage(input)
				if src == "" {
					return nil, models.NewMissingInputError("image")
				}
				return map[string]interface{}{
					"image_url":      src,
					"upscale_mode":   "factor",
					"upscale_factor": floatFieldDefault(input, 2, "scale"),
					"output_format":  "jpg",
				}, nil
			},
			Extract: extractImage,
		},

		// Skin enhancement / photo realism retouching.
		{
			ID:   "fal-ai/image-editing/realism",
			Tool: ToolSkinEnhance,
			Cost: flatCost(2),
			Adapt: func(input Input) (map[string]interface{}, error) {
				src := sourceImage(input)
				if src == "" {
					return nil, models.NewMissingInputError("image")
				}
				return map[string]interface{}{"image_url": src}, nil
			},
			Extract: extractImage,
		},

		// Camera angle change. The UI sends pitch (-90..90), yaw (-180..180)
		// and zoom (0..100); the model wants vertical_angle (-1..1),
		// rotate_right_left (degrees) and move_forward (0..10).
		{
			ID:   "fal-ai/qwen-image-edit-plus-lora-gallery/multiple-angles",
			Tool: ToolAngleChange,
			Cost: flatCost(2),
			Adapt: func(input Input) (map[string]interface{}, error) {
				src := stringField(input, "image_url", "image")
				if src == "" {
					return nil, models.NewMissingInputError("image")
				}
				yaw := floatFieldDefault(input, 0, "yaw")
				pitch := floatFieldDefault(input, 0, "pitch")
				zoom := floatFieldDefault(input, 0, "zoom")
				return map[string]interface{}{
					"image_urls":          []string{src},
					"prompt":              "change camera angle",
					"rotate_right_left":   yaw,
					"vertical_angle":      pitch / 90,
					"move_forward":        zoom / 10,
					"num_inference_steps": 28,
					"guidance_scale":      3.5,
				}, nil
			},
			Extract: extractImage,
		},

		// Video models: duration-priced.
		{
			ID:      "fal-ai/luma-dream-machine",
			Cost:    videoCost(50, video),
			Adapt:   adaptVideo,
			Extract: extractVideo,
		},
		{
			ID:      "fal-ai/kling-video",
			Cost:    videoCost(45, video),
			Adapt:   adaptVideo,
			Extract: extractVideo,
		},

		// Voice synthesis.
		{
			ID:   "fal-ai/wills-voice",
			Cost: flatCost(10),
			Adapt: func(input Input) (map[string]interface{}, error) {
				text := stringField(input, "text", "prompt")
				if text == "" {
					return nil, models.NewMissingInputError("text")
				}
				return map[string]interface{}{"text": text}, nil
			},
			Extract: func(data map[string]interface{}) (string, error) {
				if url := nestedURL(data, "audio"); url != "" {
					return url, nil
				}
				return "", fmt.Errorf("no output audio returned")
			},
		},
	}
}

func textToImage(id string, cost int) *Entry {
	return &Entry{
		ID:   id,
		Tool: ToolGenerate,
		Cost: flatCost(cost),
		Adapt: func(input Input) (map[string]interface{}, error) {
			prompt := stringField(input, "prompt")
			if prompt == "" {
				return nil, models.NewMissingInputError("prompt")
			}
			payload := map[string]interface{}{
				"prompt":     prompt,
				"num_images": 1,
			}
			if size := stringField(input, "image_size"); size != "" {
				payload["image_size"] = size
			}
			if src := stringField(input, "image_url", "image"); src != "" {
				payload["image_url"] = src
			}
			return payload, nil
		},
		Extract: extractImage,
	}
}

func adaptVideo(input Input) (map[string]interface{}, error) {
	prompt := stringField(input, "prompt")
	if prompt == "" {
		return nil, models.NewMissingInputError("prompt")
	}
	payload := map[string]interface{}{"prompt": prompt}
	if src := stringField(input, "image_url", "image"); src != "" {
		payload["image_url"] = src
	}
	if duration := intField(input, "duration", "duration_seconds"); duration > 0 {
		payload["duration"] = duration
	}
	return payload, nil
}

// extractImage handles the two response shapes providers use:
// {image: {url}} and {images: [{url}]}.
func extractImage(data map[string]interface{}) (string, error) {
	if url := nestedURL(data, "image"); url != "" {
		return url, nil
	}
	if url := firstListedURL(data, "images"); url != "" {
		return url, nil
	}
	return "", fmt.Errorf("no output image returned")
}

func extractVideo(data map[string]interface{}) (string, error) {
	if url := nestedURL(data, "video"); url != "" {
		return url, nil
	}
	return "", fmt.Errorf("no output video returned")
}

// Field helpers. Inputs arrive as decoded JSON, so numbers are float64.

func stringField(input Input, keys ...string) string {
	for _, key := range keys {
		if v, ok := input[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// sourceImage accepts the common client spellings for the source image:
// image_url, image, or the first element of image_urls.
func sourceImage(input Input) string {
	if src := stringField(input, "image_url", "image"); src != "" {
		return src
	}
	if urls, ok := input["image_urls"].([]interface{}); ok && len(urls) > 0 {
		if s, ok := urls[0].(string); ok {
			return s
		}
	}
	return ""
}

func floatFieldDefault(input Input, fallback float64, keys ...string) float64 {
	for _, key := range keys {
		switch v := input[key].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		}
	}
	return fallback
}

func intField(input Input, keys ...string) int {
	return int(floatFieldDefault(input, 0, keys...))
}

func nestedURL(data map[string]interface{}, key string) string {
	obj, ok := data[key].(map[string]interface{})
	if !ok {
		return ""
	}
	url, _ := obj["url"].(string)
	return url
}

func firstListedURL(data map[string]interface{}, key string) string {
	list, ok := data[key].([]interface{})
	if !ok || len(list) == 0 {
		return ""
	}
	obj, ok := list[0].(map[string]interface{})
	if !ok {
		return ""
	}
	url, _ := obj["url"].(string)
	return url
}
