// Package registry maps the gateway's internal provider slugs (the
// codec.Format values stored on a Channel) to the display strings the
// /v1/models endpoint reports as owned_by. Adapted from the teacher's
// provider_prefix.go label<->ID switch, which mapped CLI-provider labels to
// IDs for a bracketed-prefix display convention; here the same
// switch-on-slug idiom maps a channel's provider column to a human brand
// name instead.
package registry

import "strings"

// BrandForProvider returns the display brand name for a codec.Format
// provider slug, used to populate the owned_by field of a /v1/models entry.
// Unrecognized slugs are returned unchanged, matching the teacher's
// fall-through behavior for unknown labels.
func BrandForProvider(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return "OpenAI"
	case "openai-responses":
		return "OpenAI"
	case "anthropic":
		return "Anthropic"
	case "gemini":
		return "Google"
	case "moonshot":
		return "Moonshot AI"
	case "azure":
		return "Azure OpenAI"
	default:
		return provider
	}
}

// SlugForBrand is the inverse of BrandForProvider, used by admin handlers
// that accept a human-readable brand name when registering a channel.
func SlugForBrand(brand string) string {
	switch strings.ToLower(strings.TrimSpace(brand)) {
	case "openai":
		return "openai"
	case "anthropic":
		return "anthropic"
	case "google":
		return "gemini"
	case "moonshot ai", "moonshot":
		return "moonshot"
	case "azure openai", "azure":
		return "azure"
	default:
		return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(brand), " ", "-"))
	}
}
