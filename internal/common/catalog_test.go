package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCatalog = `
courses:
  - id: go-101
    title: Go Fundamentals
    price: "49.90"
    currency: USD
    modules:
      - id: go-101-basics
        title: Basics
        lessons:
          - id: go-101-hello
            title: Hello
            free: true
          - id: go-101-types
            title: Types
            quiz: true
            passing_score: 70
      - id: go-101-concurrency
        title: Concurrency
        lessons:
          - id: go-101-goroutines
            title: Goroutines
    certificate:
      id: go-101-cert
      title: Go Fundamentals
      validity_days: 365
      requirements:
        minimum_quiz_score: 75
  - id: intro
    title: Intro
    modules:
      - id: intro-m
        title: Welcome
        lessons:
          - id: intro-l
            title: Welcome
`

func TestParseCatalog(t *testing.T) {
	snapshot, err := ParseCatalog([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("ParseCatalog failed: %v", err)
	}

	if len(snapshot.Courses) != 2 || len(snapshot.Modules) != 3 || len(snapshot.Lessons) != 4 || len(snapshot.Certificates) != 1 {
		t.Fatalf("Unexpected snapshot sizes: %d courses %d modules %d lessons %d certificates",
			len(snapshot.Courses), len(snapshot.Modules), len(snapshot.Lessons), len(snapshot.Certificates))
	}

	if snapshot.Courses[0].Price.String() != "49.9" {
		t.Errorf("Expected price 49.9, got %s", snapshot.Courses[0].Price)
	}
	if !snapshot.Courses[1].IsFree() {
		t.Errorf("Expected course without price to be free")
	}

	types := snapshot.Lessons[1]
	if types.Position != 1 || !types.HasQuiz || types.PassingScore != 70 || types.ModuleId != "go-101-basics" {
		t.Errorf("Unexpected lesson %+v", types)
	}
	if snapshot.Modules[1].Position != 1 || snapshot.Lessons[2].Position != 0 {
		t.Errorf("Expected positions to follow file order")
	}

	cert := snapshot.Certificates[0]
	if cert.CourseId != "go-101" || cert.Requirements.MinimumQuizScore == nil || *cert.Requirements.MinimumQuizScore != 75 {
		t.Errorf("Unexpected certificate %+v", cert)
	}
	if !cert.Requirements.RequiresCompletion() {
		t.Errorf("Expected completion to be required by default")
	}
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		catalog string
		want    string
	}{
		{"missing id", "courses:\n  - title: x\n", "missing id"},
		{"bad price", "courses:\n  - id: a\n    price: abc\n    currency: USD\n", "invalid price"},
		{"negative price", "courses:\n  - id: a\n    price: \"-1\"\n    currency: USD\n", "negative price"},
		{"missing currency", "courses:\n  - id: a\n    price: \"10\"\n", "missing currency"},
		{"duplicate lesson", "courses:\n  - id: a\n    modules:\n      - id: m\n        lessons:\n          - id: l\n          - id: l\n", "duplicate lesson"},
		{"passing score", "courses:\n  - id: a\n    modules:\n      - id: m\n        lessons:\n          - id: l\n            passing_score: 120\n", "passing score"},
		{"unknown field", "courses:\n  - id: a\n    cost: 3\n", "unable to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.catalog))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o600); err != nil {
		t.Fatalf("Failed to write catalog: %v", err)
	}

	snapshot, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	if len(snapshot.Courses) != 2 {
		t.Errorf("Expected 2 courses, got %d", len(snapshot.Courses))
	}

	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Expected missing file to fail")
	}
}
