// Package template renders email subjects and bodies from the
// variable map built around a monitored file and its supplier entry.
// Two notations are supported: inline [variable] substitution for
// config-embedded templates, and Go text/template files for anything
// richer.
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
)

var varPattern = regexp.MustCompile(`\[([a-zA-Z0-9_]+)\]`)

// BuildVars assembles the substitution variables for one outgoing
// file: file attributes, supplier fields, date parts and system
// identity, plus any caller-supplied custom entries (which win on
// collision).
func BuildVars(filePath string, sup model.Supplier, custom map[string]string) map[string]string {
	filename := filepath.Base(filePath)

	var size int64
	if info, err := os.Stat(filePath); err == nil {
		size = info.Size()
	}

	now := time.Now()
	hostname, _ := os.Hostname()

	vars := map[string]string{
		"filename":             filename,
		"filename_without_ext": strings.TrimSuffix(filename, filepath.Ext(filename)),
		"filepath":             filePath,
		"file_size":            fmt.Sprintf("%d", size),
		"file_size_mb":         fmt.Sprintf("%.2f", float64(size)/(1024*1024)),

		"supplier_code": sup.SupplierCode,
		"supplier_name": sup.SupplierName,
		"contact_name":  sup.ContactName,
		"supplier_key":  sup.Key,

		"date":       now.Format("2006-01-02"),
		"time":       now.Format("15:04:05"),
		"datetime":   now.Format("2006-01-02 15:04:05"),
		"day":        now.Format("02"),
		"month":      now.Format("01"),
		"year":       now.Format("2006"),
		"month_name": now.Format("January"),
		"day_name":   now.Format("Monday"),

		"computer_name": hostname,
	}

	for k, v := range custom {
		vars[k] = v
	}

	return vars
}

// Render substitutes [variable] occurrences in text. Unknown variables
// are left untouched so a typo is visible in the produced email rather
// than silently blanked.
func Render(text string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// RenderFile executes a Go text/template file from the template
// directory with the variable map as its data.
func RenderFile(dir, name string, vars map[string]string) (string, error) {
	tmpl, err := texttemplate.ParseFiles(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, vars); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", name, err)
	}
	return sb.String(), nil
}
