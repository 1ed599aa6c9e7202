package scheduler

import (
	"testing"

	"metasbot/internal/storage"
)

func TestResolveTemplatePriority(t *testing.T) {
	t.Parallel()

	override := &storage.Template{ID: 1, Name: "override", Content: "schedule-level"}
	deflt := &storage.Template{ID: 2, Name: "default", Content: "definition-level"}

	tests := []struct {
		name string
		s    storage.Schedule
		want string
	}{
		{
			name: "schedule override wins over definition default",
			s: storage.Schedule{
				Template:   override,
				Definition: &storage.Definition{DefaultTemplate: deflt},
			},
			want: "schedule-level",
		},
		{
			name: "definition default when schedule has none",
			s: storage.Schedule{
				Definition: &storage.Definition{DefaultTemplate: deflt},
			},
			want: "definition-level",
		},
		{
			name: "empty override falls through to default",
			s: storage.Schedule{
				Template:   &storage.Template{Content: ""},
				Definition: &storage.Definition{DefaultTemplate: deflt},
			},
			want: "definition-level",
		},
		{
			name: "neither exists",
			s:    storage.Schedule{Definition: &storage.Definition{}},
			want: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveTemplate(tt.s); got != tt.want {
				t.Fatalf("ResolveTemplate = %q, want %q", got, tt.want)
			}
		})
	}
}
