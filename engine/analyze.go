package engine

import (
	"strings"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/entities"
)

// Analyze checks script without running it.
func (e *Engine) Analyze(script string) entities.Analysis {
	a := entities.Analysis{SyntaxErrors: []string{}, Warnings: []string{}}
	if strings.TrimSpace(script) == "" {
		a.Warnings = append(a.Warnings, "script is empty")
	}
	if _, err := compile(script); err != nil {
		a.SyntaxErrors = append(a.SyntaxErrors, err.Error())
		return a
	}
	a.Valid = true
	return a
}
