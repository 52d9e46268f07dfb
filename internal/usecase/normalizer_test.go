package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "cheerios 12 oz", NormalizeText("  Cheerios \t 12   OZ "))
	assert.Equal(t, "", NormalizeText("   "))
}

func TestNormalizeSize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"12 OZ", "12"},
		{"12oz", "12"},
		{"1.5 L", "15"},
		{"12.0 OZ", "12"},
		{"1.50 L", "15"},
		{"10 oz", "10"},
		{"6 ct", "6"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeSize(tt.input))
		})
	}
}

func TestNormalizeSize_SameSizeSpellings(t *testing.T) {
	want := NormalizeSize("12 oz")
	for _, s := range []string{"12oz", "12.0 OZ", "12.00 oz"} {
		assert.Equal(t, want, NormalizeSize(s), s)
	}
}

func TestNormalizeBrand(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"General  Mills", "general mills"},
		{"Häagen-Dazs®", "haagendazs"},
		{"Ben & Jerry’s", "ben & jerrys"},
		{"Kellogg's", "kelloggs"},
		{"Nature's Path™", "natures path"},
		{"St. Dalfour", "st dalfour"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeBrand(tt.input))
		})
	}
}

func TestSplitSlug(t *testing.T) {
	tests := []struct {
		slug string
		name string
		size string
	}{
		{"cheerios-cereal-12-oz-b000ftxp0u", "cheerios cereal", "12 oz"},
		{"organic-whole-milk-64fl", "organic whole milk", "64fl"},
		{"sparkling-water-12-fl-oz", "sparkling water", "12 fl oz"},
		{"fresh-strawberries", "fresh strawberries", ""},
		{"chocolate-bar-3-5-oz", "chocolate bar", "3.5 oz"},
		{"olive-oil-16-9-fl-oz", "olive oil", "16.9 fl oz"},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			name, size := SplitSlug(tt.slug)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.size, size)
		})
	}
}

func TestSlugBase(t *testing.T) {
	assert.Equal(t, "cheerios cereal 12 oz", SlugBase("cheerios-cereal-12-oz-b000ftxp0u"))
	assert.Equal(t, "plain bagels", SlugBase("plain-bagels"))
}

func TestExtractSize(t *testing.T) {
	assert.Equal(t, "12 oz", ExtractSize("Cheerios 12 oz"))
	assert.Equal(t, "128 fl oz", ExtractSize("Whole Milk 128 FL OZ"))
	assert.Equal(t, "1.5 l", ExtractSize("Spring Water 1.5 L"))
	assert.Equal(t, "16 ounces", ExtractSize("Pasta 16 ounces"))
	assert.Equal(t, "", ExtractSize("Bananas"))
}
