package jobs

import (
	"strings"
	"testing"
	"time"

	"metasbot/internal/storage"
)

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	t.Parallel()
	rc := renderContext{
		Contact: storage.Contact{Name: "maria clara souza", Department: "direção"},
		Title:   "Metas Diárias",
		Now:     time.Date(2026, time.August, 31, 9, 30, 0, 0, time.UTC),
	}
	tpl := "{saudacao}, {nome}! ({nome_completo}, {grupo})\n{titulo} de {data}. {saudacao_lower}."
	got := render(tpl, rc)
	want := "Bom dia, Maria! (maria clara souza, Direção)\nMetas Diárias de 31/08/2026. bom dia."
	if got != want {
		t.Fatalf("render =\n%q\nwant\n%q", got, want)
	}
}

func TestRenderEmptyTemplateUsesFallback(t *testing.T) {
	t.Parallel()
	rc := renderContext{
		Contact: storage.Contact{Name: "João Silva"},
		Now:     time.Date(2026, time.August, 31, 14, 0, 0, 0, time.UTC),
	}
	got := render("   ", rc)
	if !strings.HasPrefix(got, "Boa tarde, João!") {
		t.Fatalf("fallback = %q", got)
	}
	if !strings.Contains(got, "31/08/2026") {
		t.Fatalf("fallback missing date reference: %q", got)
	}
}

func TestRenderUnknownPlaceholderIsLeftAlone(t *testing.T) {
	t.Parallel()
	got := render("oi {nome}, veja {placeholder_desconhecido}", renderContext{
		Contact: storage.Contact{Name: "Ana"},
		Now:     time.Now(),
	})
	if !strings.Contains(got, "{placeholder_desconhecido}") {
		t.Fatalf("unknown placeholder was mangled: %q", got)
	}
}

func TestGreetingBoundaries(t *testing.T) {
	t.Parallel()
	tests := []struct {
		hour int
		want string
	}{
		{4, "Boa noite"},
		{5, "Bom dia"},
		{11, "Bom dia"},
		{12, "Boa tarde"},
		{17, "Boa tarde"},
		{18, "Boa noite"},
		{23, "Boa noite"},
		{0, "Boa noite"},
	}
	for _, tt := range tests {
		now := time.Date(2026, time.August, 31, tt.hour, 0, 0, 0, time.UTC)
		if got := greetingFor(now); got != tt.want {
			t.Fatalf("greetingFor(hour=%d) = %q, want %q", tt.hour, got, tt.want)
		}
	}
}

func TestFirstName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"maria clara souza", "Maria"},
		{"JOÃO", "João"},
		{"  ", "Colaborador"},
		{"", "Colaborador"},
		{"ana", "Ana"},
	}
	for _, tt := range tests {
		if got := firstName(tt.in); got != tt.want {
			t.Fatalf("firstName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTitleCaseHandlesAccents(t *testing.T) {
	t.Parallel()
	if got := titleCase("ótica"); got != "Ótica" {
		t.Fatalf("titleCase = %q, want %q", got, "Ótica")
	}
	if got := titleCase(""); got != "" {
		t.Fatalf("titleCase(\"\") = %q", got)
	}
}
