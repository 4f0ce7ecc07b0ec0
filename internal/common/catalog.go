package common

import (
	"fmt"
	"os"
	"path/filepath"

	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type LessonConfig struct {
	Id              string  `yaml:"id"`
	Title           string  `yaml:"title"`
	Free            bool    `yaml:"free"`
	Quiz            bool    `yaml:"quiz"`
	PassingScore    float64 `yaml:"passing_score"`
	DurationSeconds int64   `yaml:"duration_seconds"`
}

type ModuleConfig struct {
	Id      string         `yaml:"id"`
	Title   string         `yaml:"title"`
	Lessons []LessonConfig `yaml:"lessons"`
}

type CertificateConfig struct {
	Id           string                         `yaml:"id"`
	Title        string                         `yaml:"title"`
	ValidityDays int                            `yaml:"validity_days"`
	Requirements models.CertificateRequirements `yaml:"requirements"`
}

type CourseConfig struct {
	Id          string             `yaml:"id"`
	Title       string             `yaml:"title"`
	Price       string             `yaml:"price"`
	Currency    string             `yaml:"currency"`
	Modules     []ModuleConfig     `yaml:"modules"`
	Certificate *CertificateConfig `yaml:"certificate"`
}

type CatalogConfig struct {
	Courses []CourseConfig `yaml:"courses"`
}

// LoadCatalog reads the catalog file and flattens it into a snapshot.
// Module and lesson positions follow their order in the file.
func LoadCatalog(catalogFile string) (*store.CatalogSnapshot, error) {
	var catalogPath string
	if filepath.IsAbs(catalogFile) {
		catalogPath = catalogFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		catalogPath = filepath.Join(wd, catalogFile)
	}

	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", catalogFile, err)
	}

	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*store.CatalogSnapshot, error) {
	var config CatalogConfig
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse catalog: %w", err)
	}

	snapshot := &store.CatalogSnapshot{}
	seen := make(map[string]bool)
	unique := func(kind, id string) error {
		if id == "" {
			return fmt.Errorf("%s missing id", kind)
		}
		key := kind + ":" + id
		if seen[key] {
			return fmt.Errorf("duplicate %s id %s", kind, id)
		}
		seen[key] = true
		return nil
	}

	for i, c := range config.Courses {
		if err := unique("course", c.Id); err != nil {
			return nil, fmt.Errorf("course at index %d: %w", i, err)
		}
		price := decimal.Zero
		if c.Price != "" {
			parsed, err := decimal.NewFromString(c.Price)
			if err != nil {
				return nil, fmt.Errorf("course %s has invalid price %q: %w", c.Id, c.Price, err)
			}
			price = parsed
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("course %s has negative price", c.Id)
		}
		if c.Currency == "" && price.IsPositive() {
			return nil, fmt.Errorf("course %s missing currency", c.Id)
		}
		snapshot.Courses = append(snapshot.Courses, models.Course{Id: c.Id, Title: c.Title, Price: price, Currency: c.Currency})

		for mi, m := range c.Modules {
			if err := unique("module", m.Id); err != nil {
				return nil, fmt.Errorf("course %s module at index %d: %w", c.Id, mi, err)
			}
			snapshot.Modules = append(snapshot.Modules, models.Module{Id: m.Id, CourseId: c.Id, Title: m.Title, Position: mi})

			for li, l := range m.Lessons {
				if err := unique("lesson", l.Id); err != nil {
					return nil, fmt.Errorf("module %s lesson at index %d: %w", m.Id, li, err)
				}
				if l.PassingScore < 0 || l.PassingScore > 100 {
					return nil, fmt.Errorf("lesson %s passing score must be between 0 and 100", l.Id)
				}
				snapshot.Lessons = append(snapshot.Lessons, models.Lesson{
					Id:              l.Id,
					CourseId:        c.Id,
					ModuleId:        m.Id,
					Title:           l.Title,
					Position:        li,
					IsFree:          l.Free,
					HasQuiz:         l.Quiz,
					PassingScore:    l.PassingScore,
					DurationSeconds: l.DurationSeconds,
				})
			}
		}

		if cert := c.Certificate; cert != nil {
			if err := unique("certificate", cert.Id); err != nil {
				return nil, fmt.Errorf("course %s certificate: %w", c.Id, err)
			}
			snapshot.Certificates = append(snapshot.Certificates, models.Certificate{
				Id:           cert.Id,
				CourseId:     c.Id,
				Title:        cert.Title,
				ValidityDays: cert.ValidityDays,
				Requirements: cert.Requirements,
			})
		}
	}

	return snapshot, nil
}
