package usecase

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shelfscan/backend/internal/domain"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Compiled patterns for product text normalization
var (
	multiSpacePattern = regexp.MustCompile(`\s+`)
	nonDigitPattern   = regexp.MustCompile(`\D`)
	decimalPattern    = regexp.MustCompile(`(\d+)\.(\d+)`)

	// Brand punctuation dropped before comparison (apostrophes, marks, hyphens, dots)
	brandPunctPattern = regexp.MustCompile(`[’'®™\-.]`)

	// Platform product id suffix on slugs, e.g. "-b08xyz1234"
	slugIDPattern = regexp.MustCompile(`-b[0-9a-z]{9,}$`)

	// "<num><unit>" inside a single slug token, e.g. "12oz", "1.5l"
	slugSizeToken = regexp.MustCompile(`^(\d+(?:\.\d+)?)(oz|fl|floz|fl-oz|g|mg|kg|ml|l|lb|lbs|ct|pack|pk|fz)$`)
	numberToken   = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	slugFraction  = regexp.MustCompile(`^\d{1,2}$`)

	// Size/quantity phrases in free text like "12 oz", "128 fl oz", "1.5 l", "6 ct"
	sizeInTextPattern = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(fl\.?\s*oz|floz|oz|ounces?|lbs?|pounds?|ml|l|liters?|kg|g|grams?|mg|ct|count|pk|pack)\b`)
)

var sizeUnits = map[string]bool{
	"oz": true, "fl": true, "floz": true, "fl-oz": true, "g": true, "mg": true, "kg": true,
	"ml": true, "l": true, "lb": true, "lbs": true, "ct": true, "pack": true, "pk": true, "fz": true,
}

// NormalizeText lowercases s and collapses whitespace
func NormalizeText(s string) string {
	return strings.TrimSpace(multiSpacePattern.ReplaceAllString(strings.ToLower(s), " "))
}

// NormalizeSize keeps only the digits of a size string ("12 OZ" -> "12", "1.5 L" -> "15").
// Trailing zeros of a fraction are dropped first, so "12.0 OZ" -> "12" and "1.50 L" -> "15".
func NormalizeSize(s string) string {
	s = decimalPattern.ReplaceAllStringFunc(s, func(num string) string {
		whole, frac, _ := strings.Cut(num, ".")
		return whole + strings.TrimRight(frac, "0")
	})
	return nonDigitPattern.ReplaceAllString(s, "")
}

// NormalizeBrand folds a brand to its comparable form: compatibility-decomposed, accents and
// trademark punctuation removed, lowercased, whitespace collapsed
func NormalizeBrand(s string) string {
	if s == "" {
		return ""
	}
	// ™ decomposes to "TM" under NFKD, so marks go before folding
	stripped := brandPunctPattern.ReplaceAllString(s, "")
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, stripped)
	if err != nil {
		folded = stripped
	}
	return NormalizeText(folded)
}

// SplitSlug splits a product slug into a readable name and a size token.
// A trailing 10-character alphanumeric platform id is dropped.
func SplitSlug(slug string) (name, size string) {
	parts := strings.Split(strings.ToLower(strings.Trim(slug, "-")), "-")
	if n := len(parts); n > 1 && isPlatformID(parts[n-1]) {
		parts = parts[:n-1]
	}

	kept := make([]string, 0, len(parts))
	for i := 0; i < len(parts); i++ {
		p := parts[i]
		if size == "" {
			if slugSizeToken.MatchString(p) {
				size = p
				continue
			}
			if numberToken.MatchString(p) {
				num, unit := p, i+1
				// "3-5-oz" is a decimal size with the dot turned into a dash
				if unit+1 < len(parts) && slugFraction.MatchString(parts[unit]) && sizeUnits[parts[unit+1]] {
					num += "." + parts[unit]
					unit++
				}
				if unit < len(parts) && sizeUnits[parts[unit]] {
					size = num + " " + parts[unit]
					if parts[unit] == "fl" && unit+1 < len(parts) && parts[unit+1] == "oz" {
						size += " oz"
						unit++
					}
					i = unit
					continue
				}
			}
		}
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " "), size
}

// isPlatformID reports whether a slug segment looks like a retailer product id
func isPlatformID(s string) bool {
	if len(s) != 10 {
		return false
	}
	hasDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'a' && r <= 'z':
		default:
			return false
		}
	}
	return hasDigit
}

// SlugBase strips the platform id suffix and returns the slug as space separated words
func SlugBase(slug string) string {
	base := slugIDPattern.ReplaceAllString(strings.ToLower(slug), "")
	return NormalizeText(strings.ReplaceAll(base, "-", " "))
}

// ExtractSize finds the first size phrase in free text
func ExtractSize(text string) string {
	m := sizeInTextPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1] + " " + strings.ToLower(m[2])
}

// NormalizeEntry fills the derived fields of a catalogue entry
func NormalizeEntry(e *domain.CatalogueEntry) {
	name := e.Name
	size := e.SizeRaw
	if e.Slug != "" {
		slugName, slugSize := SplitSlug(e.Slug)
		if name == "" {
			name = slugName
		}
		if size == "" {
			size = slugSize
		}
		e.Base = SlugBase(e.Slug)
	}
	if size == "" {
		size = ExtractSize(name)
	}
	e.NormalizedName = NormalizeText(name)
	e.NormalizedSize = NormalizeSize(size)
	e.NormalizedBrand = NormalizeBrand(e.Brand)
	if e.Base == "" {
		e.Base = e.NormalizedName
	}
}

// NormalizeReference fills the derived fields of a reference row
func NormalizeReference(r *domain.ReferenceRow) {
	size := r.Size
	if size == "" {
		size = ExtractSize(r.Description)
	}
	r.NormalizedName = NormalizeText(r.Description)
	r.NormalizedSize = NormalizeSize(size)
	r.NormalizedBrand = NormalizeBrand(r.Brand)
}
