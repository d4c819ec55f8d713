package source

import (
	"path/filepath"
	"strings"
)

// languageMap maps file extensions to the languages that appear in
// analyzed embedded programs.
var languageMap = map[string]string{
	// C/C++
	".c":   "c",
	".h":   "c",
	".cpp": "cpp",
	".hpp": "cpp",
	".cc":  "cpp",
	".hh":  "cpp",
	".cxx": "cpp",
	".hxx": "cpp",

	// Assembly
	".asm": "assembly",
	".s":   "assembly",
	".S":   "assembly",

	// Ada
	".adb": "ada",
	".ads": "ada",

	// Rust
	".rs": "rust",
}

// LanguageOf returns the language of path from its extension, or "" when
// it is unknown. Extension case matters only for assembly.
func LanguageOf(path string) string {
	ext := filepath.Ext(path)
	if lang, ok := languageMap[ext]; ok {
		return lang
	}
	return languageMap[strings.ToLower(ext)]
}
