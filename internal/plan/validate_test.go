package plan

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		stages     []Stage
		wantErrors int
		wantText   string
	}{
		{
			name: "valid stacked plan",
			stages: []Stage{
				{Number: 1, Title: "a", Branch: "a", ParallelGroup: "1"},
				{Number: 2, Title: "b", Branch: "b", ParallelGroup: "1"},
				{Number: 3, Title: "c", Branch: "c", ParallelGroup: "2", DependsOn: "a"},
			},
		},
		{
			name:       "no stages",
			wantErrors: 1,
			wantText:   "no stages",
		},
		{
			name: "unknown dependency",
			stages: []Stage{
				{Number: 1, Title: "a", Branch: "a", ParallelGroup: "1", DependsOn: "stage 0"},
			},
			wantErrors: 1,
			wantText:   "unknown branch",
		},
		{
			name: "self dependency",
			stages: []Stage{
				{Number: 1, Title: "a", Branch: "a", ParallelGroup: "1", DependsOn: "a"},
			},
			wantErrors: 1,
			wantText:   "itself",
		},
		{
			name: "dependency in same group",
			stages: []Stage{
				{Number: 1, Title: "a", Branch: "a", ParallelGroup: "1"},
				{Number: 2, Title: "b", Branch: "b", ParallelGroup: "1", DependsOn: "a"},
			},
			wantErrors: 1,
			wantText:   "does not run before",
		},
		{
			name: "forward dependency",
			stages: []Stage{
				{Number: 1, Title: "a", Branch: "a", ParallelGroup: "1", DependsOn: "b"},
				{Number: 2, Title: "b", Branch: "b", ParallelGroup: "2"},
			},
			wantErrors: 1,
			wantText:   "does not run before",
		},
		{
			name: "duplicates",
			stages: []Stage{
				{Number: 1, Title: "a", Branch: "a", ParallelGroup: "1"},
				{Number: 1, Title: "b", Branch: "a", ParallelGroup: "1"},
			},
			wantErrors: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Plan{Stages: tt.stages}
			result := p.Validate()

			if result.ErrorCount != tt.wantErrors {
				t.Errorf("ErrorCount = %d, want %d: %v", result.ErrorCount, tt.wantErrors, result.Messages)
			}
			if result.HasErrors() != (tt.wantErrors > 0) {
				t.Errorf("HasErrors() = %v", result.HasErrors())
			}
			if tt.wantText != "" {
				found := false
				for _, m := range result.Errors() {
					if strings.Contains(m.String(), tt.wantText) {
						found = true
					}
				}
				if !found {
					t.Errorf("no error containing %q in %v", tt.wantText, result.Messages)
				}
			}
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	p := &Plan{Stages: []Stage{{Number: 1, Branch: "a", ParallelGroup: "1"}}}
	result := p.Validate()
	if result.HasErrors() {
		t.Errorf("unexpected errors: %v", result.Errors())
	}
	if len(result.Warnings()) != 1 || result.WarningCount != 1 {
		t.Errorf("Warnings() = %v, want one missing-title warning", result.Warnings())
	}
}
