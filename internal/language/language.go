package language

// Language is one of the closed set of codes the relay understands.
type Language string

const (
	Japanese           Language = "ja"
	ChineseTraditional Language = "zh-Hant-TW"
	French             Language = "fr"
)

// Supported returns the closed language set in canonical order.
func Supported() []Language {
	return []Language{Japanese, ChineseTraditional, French}
}

// IsSupported reports whether l is a member of the closed set.
func IsSupported(l Language) bool {
	switch l {
	case Japanese, ChineseTraditional, French:
		return true
	}
	return false
}

// Normalize maps a backend-specific code into the closed set using the given
// alias table. Codes that already belong to the set pass through; anything
// unmapped resolves to fallback.
func Normalize(code string, aliases map[string]Language, fallback Language) Language {
	if l, ok := aliases[code]; ok {
		return l
	}
	if IsSupported(Language(code)) {
		return Language(code)
	}
	return fallback
}

// Dedup removes duplicates while keeping first-seen order.
func Dedup(langs []Language) []Language {
	seen := make(map[Language]struct{}, len(langs))
	out := make([]Language, 0, len(langs))
	for _, l := range langs {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
