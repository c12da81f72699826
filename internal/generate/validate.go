package generate

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/grump-ai/grump-engine/internal/pipeline"
)

// validatedExtensions are the file types the static validator covers.
var validatedExtensions = map[string]bool{
	".ts":   true,
	".tsx":  true,
	".js":   true,
	".jsx":  true,
	".go":   true,
	".json": true,
}

// Validator performs lightweight per-file static validation. Findings are
// recorded, never raised: validation failures are data.
type Validator struct{}

// Validate checks one generated file. Returns nil when the extension is not
// covered.
func (Validator) Validate(file pipeline.GeneratedFile) *pipeline.FileValidation {
	ext := strings.ToLower(path.Ext(file.Path))
	if !validatedExtensions[ext] {
		return nil
	}

	var findings []string

	if strings.TrimSpace(file.Content) == "" {
		findings = append(findings, "file is empty")
	}

	if ext == ".json" {
		if !json.Valid([]byte(file.Content)) {
			findings = append(findings, "content is not valid JSON")
		}
	} else {
		findings = append(findings, checkBalance(file.Content)...)
	}

	return &pipeline.FileValidation{
		Path:     file.Path,
		Valid:    len(findings) == 0,
		Findings: findings,
	}
}

// checkBalance verifies brace, bracket, and paren pairing outside of string
// literals and line comments.
func checkBalance(content string) []string {
	var findings []string
	counts := map[rune]int{'{': 0, '[': 0, '(': 0}

	inString := rune(0)
	inLineComment := false
	prev := rune(0)
	for _, r := range content {
		switch {
		case inLineComment:
			if r == '\n' {
				inLineComment = false
			}
		case inString != 0:
			if r == inString && prev != '\\' {
				inString = 0
			}
		default:
			switch r {
			case '"', '\'', '`':
				inString = r
			case '/':
				if prev == '/' {
					inLineComment = true
				}
			case '{':
				counts['{']++
			case '}':
				counts['{']--
			case '[':
				counts['[']++
			case ']':
				counts['[']--
			case '(':
				counts['(']++
			case ')':
				counts['(']--
			}
		}
		prev = r
	}

	for _, open := range []rune{'{', '[', '('} {
		if n := counts[open]; n != 0 {
			findings = append(findings, fmt.Sprintf("unbalanced %q (delta %d)", open, n))
		}
	}
	return findings
}
