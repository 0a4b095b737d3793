package warehouse

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/jackc/pgx/v5"
)

var sqlFuncs = template.FuncMap{
	"ident":   ident,
	"literal": literal,
}

// ident quotes each part and joins them with dots.
func ident(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

// literal quotes s as a SQL string literal.
func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// templateData is what SQL templates see as the dot.
type templateData struct {
	Params map[string]string
}

// render executes text as a template over params. A reference to a
// missing param is an error.
func render(name, text string, params map[string]string) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Funcs(sqlFuncs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing SQL template: %w", err)
	}
	if params == nil {
		params = map[string]string{}
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, templateData{Params: params}); err != nil {
		return "", fmt.Errorf("rendering SQL template: %w", err)
	}
	return b.String(), nil
}
