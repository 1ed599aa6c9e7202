package jobs

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"metasbot/internal/storage"
)

// Recognized template placeholders, Python str.format style to stay
// compatible with the templates already stored in the database:
// {nome} {nome_completo} {saudacao} {saudacao_lower} {data} {titulo} {grupo}

// renderContext carries the per-recipient values substituted into a template.
type renderContext struct {
	Contact storage.Contact
	Title   string
	Now     time.Time
}

// render substitutes the recognized placeholders into tpl. When tpl is empty
// the hardcoded fallback caption is used instead.
func render(tpl string, rc renderContext) string {
	greeting := greetingFor(rc.Now)
	if strings.TrimSpace(tpl) == "" {
		return fmt.Sprintf("%s, %s!\n\nSegue o relatório de %s.",
			greeting, firstName(rc.Contact.Name), dateRef(rc.Now))
	}
	r := strings.NewReplacer(
		"{nome}", firstName(rc.Contact.Name),
		"{nome_completo}", rc.Contact.Name,
		"{saudacao}", greeting,
		"{saudacao_lower}", strings.ToLower(greeting),
		"{data}", dateRef(rc.Now),
		"{titulo}", rc.Title,
		"{grupo}", titleCase(rc.Contact.Department),
	)
	return r.Replace(tpl)
}

// greetingFor picks the time-of-day greeting: morning 05-11, afternoon
// 12-17, evening otherwise.
func greetingFor(now time.Time) string {
	switch h := now.Hour(); {
	case h >= 5 && h < 12:
		return "Bom dia"
	case h >= 12 && h < 18:
		return "Boa tarde"
	default:
		return "Boa noite"
	}
}

func dateRef(now time.Time) string {
	return now.Format("02/01/2006")
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "Colaborador"
	}
	return titleCase(fields[0])
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	r, size := utf8.DecodeRuneInString(lower)
	return string(unicode.ToUpper(r)) + lower[size:]
}
