package media

import (
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
)

// StyleDeclarations parses an inline style attribute. The parser drops the
// value of a final declaration that is not terminated, which is the usual
// form of style attributes, so a terminating semicolon is added first.
func StyleDeclarations(style string) ([]*css.Declaration, error) {
	style = strings.TrimSpace(style)
	if style == "" {
		return nil, nil
	}
	if !strings.HasSuffix(style, ";") {
		style += ";"
	}
	return parser.ParseDeclarations(style)
}
