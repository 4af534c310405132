package utils

import (
	"regexp"
	"strings"
)

// GenerateSlug builds a URL-safe slug from a mod title
func GenerateSlug(input string) string {
	// Step 1: Fold accented characters to ASCII
	// "Café Überlay" → "Cafe Uberlay"
	ascii := RemoveDiacritics(input)

	// Step 2: Lowercase
	// "Cafe Uberlay" → "cafe uberlay"
	lower := strings.ToLower(ascii)

	// Step 3: Replace spaces with hyphens
	// "cafe uberlay" → "cafe-uberlay"
	hyphenated := strings.ReplaceAll(lower, " ", "-")

	// Step 4: Remove special characters
	// Keep only: a-z, 0-9, hyphens
	reg := regexp.MustCompile(`[^a-z0-9-]+`)
	cleaned := reg.ReplaceAllString(hyphenated, "")

	// Step 5: Collapse consecutive hyphens
	// "dark--theme---pack" → "dark-theme-pack"
	reg = regexp.MustCompile(`-+`)
	normalized := reg.ReplaceAllString(cleaned, "-")

	// Step 6: Trim leading/trailing hyphens
	trimmed := strings.Trim(normalized, "-")

	return trimmed
}

// RemoveDiacritics folds common Latin diacritics to their base
// character so accented titles still produce readable slugs.
func RemoveDiacritics(input string) string {
	mappings := map[rune]rune{
		// Vowel A
		'à': 'a', 'á': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a', 'å': 'a', 'ā': 'a',

		// Vowel E
		'è': 'e', 'é': 'e', 'ê': 'e', 'ë': 'e', 'ē': 'e', 'ė': 'e', 'ę': 'e',

		// Vowel I
		'ì': 'i', 'í': 'i', 'î': 'i', 'ï': 'i', 'ī': 'i', 'į': 'i',

		// Vowel O
		'ò': 'o', 'ó': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o', 'ø': 'o', 'ō': 'o',

		// Vowel U
		'ù': 'u', 'ú': 'u', 'û': 'u', 'ü': 'u', 'ū': 'u', 'ů': 'u',

		// Vowel Y
		'ý': 'y', 'ÿ': 'y',

		// Consonants
		'ç': 'c', 'ć': 'c', 'č': 'c',
		'ñ': 'n', 'ń': 'n',
		'š': 's', 'ś': 's',
		'ž': 'z', 'ź': 'z', 'ż': 'z',
		'đ': 'd',

		// UPPERCASE
		'À': 'A', 'Á': 'A', 'Â': 'A', 'Ã': 'A', 'Ä': 'A', 'Å': 'A', 'Ā': 'A',
		'È': 'E', 'É': 'E', 'Ê': 'E', 'Ë': 'E', 'Ē': 'E', 'Ė': 'E', 'Ę': 'E',
		'Ì': 'I', 'Í': 'I', 'Î': 'I', 'Ï': 'I', 'Ī': 'I', 'Į': 'I',
		'Ò': 'O', 'Ó': 'O', 'Ô': 'O', 'Õ': 'O', 'Ö': 'O', 'Ø': 'O', 'Ō': 'O',
		'Ù': 'U', 'Ú': 'U', 'Û': 'U', 'Ü': 'U', 'Ū': 'U', 'Ů': 'U',
		'Ý': 'Y',
		'Ç': 'C', 'Ć': 'C', 'Č': 'C',
		'Ñ': 'N', 'Ń': 'N',
		'Š': 'S', 'Ś': 'S',
		'Ž': 'Z', 'Ź': 'Z', 'Ż': 'Z',
		'Đ': 'D',
	}

	result := make([]rune, 0, len(input))
	for _, r := range input {
		if replacement, ok := mappings[r]; ok {
			result = append(result, replacement)
		} else {
			result = append(result, r)
		}
	}

	return string(result)
}
