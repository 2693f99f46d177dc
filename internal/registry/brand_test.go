package registry

import "testing"

func TestBrandForProviderKnown(t *testing.T) {
	cases := map[string]string{
		"openai":           "OpenAI",
		"openai-responses": "OpenAI",
		"anthropic":        "Anthropic",
		"gemini":           "Google",
		"moonshot":         "Moonshot AI",
		"azure":            "Azure OpenAI",
	}
	for provider, want := range cases {
		if got := BrandForProvider(provider); got != want {
			t.Errorf("BrandForProvider(%q) = %q, want %q", provider, got, want)
		}
	}
}

func TestBrandForProviderUnknownPassesThrough(t *testing.T) {
	if got := BrandForProvider("custom-provider"); got != "custom-provider" {
		t.Errorf("got %q", got)
	}
}

func TestSlugForBrandRoundTrips(t *testing.T) {
	for _, slug := range []string{"openai", "anthropic", "gemini", "moonshot", "azure"} {
		brand := BrandForProvider(slug)
		if got := SlugForBrand(brand); got != slug {
			t.Errorf("SlugForBrand(BrandForProvider(%q)=%q) = %q, want %q", slug, brand, got, slug)
		}
	}
}
