// Package codegraph holds the entities shared by the indexer, the
// validator, the search engine and the hallucination detector: the
// repository/file/class/method/function graph shape, the vector-store
// projection of that shape, and the small value types produced by
// validation and hallucination checks.
package codegraph

import "time"

// Kind identifies what a CodeExample (or a reference into the graph)
// projects: a class, a method, or a free function.
type Kind string

const (
	KindClass    Kind = "class"
	KindMethod   Kind = "method"
	KindFunction Kind = "function"
)

// Parameter is one entry of an ordered parameter list.
type Parameter struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Repository is a read-only (from this core's perspective) graph node.
type Repository struct {
	Name string `json:"name"`
}

// File belongs to exactly one Repository.
type File struct {
	Path       string `json:"path"`
	ModuleName string `json:"module_name"`
}

// Class belongs to exactly one File and owns Methods and Attributes.
type Class struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// Method belongs to exactly one Class.
type Method struct {
	Name       string      `json:"name"`
	Parameters []Parameter `json:"parameters"`
	ReturnType string      `json:"return_type,omitempty"`
}

// Function is free-standing, shaped like Method minus class membership.
type Function struct {
	Name       string      `json:"name"`
	Parameters []Parameter `json:"parameters"`
	ReturnType string      `json:"return_type,omitempty"`
}

// Attribute belongs to a Class.
type Attribute struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// ExtractionRecord is one row of the graph extraction sweep: a single
// Class, Method or Function projected with its owning file and module.
type ExtractionRecord struct {
	Kind       Kind
	Name       string
	FullName   string
	ClassName  string // non-empty only when Kind == KindMethod
	FilePath   string
	ModuleName string
	Parameters []Parameter
	ReturnType string
}

// CodeExamplePayload is the structured, filterable metadata attached to a
// vector-store point. The JSON field names are part of the wire contract;
// downstream tooling filters on them by equality.
type CodeExamplePayload struct {
	RepositoryName   string      `json:"repository_name"`
	FilePath         string      `json:"file_path"`
	ModuleName       string      `json:"module_name"`
	Kind             Kind        `json:"kind"`
	Name             string      `json:"name"`
	FullName         string      `json:"full_name"`
	ClassName        string      `json:"class_name,omitempty"`
	Parameters       []Parameter `json:"parameters"`
	ReturnType       string      `json:"return_type,omitempty"`
	Language         string      `json:"language"`
	ValidationStatus string      `json:"validation_status,omitempty"`
}

// CodeExample is the full projection of a Class/Method/Function into the
// vector store: a deterministic id, the embedding vector, the summary text
// that produced it, and the payload above.
type CodeExample struct {
	ID        string
	Embedding []float32
	Summary   string
	Payload   CodeExamplePayload
}

// ValidationVerdict is the pure, cacheable result of validating a single
// reference against the graph store.
type ValidationVerdict struct {
	Found       bool     `json:"found"`
	Confidence  float64  `json:"confidence"`
	Reason      string   `json:"reason,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// RiskLevel is the coarse-grained hallucination risk bucket.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ReferenceKind enumerates the kinds of reference the static analyser and
// hallucination detector work with.
type ReferenceKind string

const (
	RefImport    ReferenceKind = "import"
	RefClass     ReferenceKind = "class"
	RefMethod    ReferenceKind = "method"
	RefFunction  ReferenceKind = "function"
	RefAttribute ReferenceKind = "attribute"
)

// HallucinationItem is one checked reference in a HallucinationReport.
type HallucinationItem struct {
	Kind        ReferenceKind `json:"kind"`
	Name        string        `json:"name"`
	Supported   bool          `json:"supported"`
	Confidence  float64       `json:"confidence"`
	Evidence    string        `json:"evidence,omitempty"`
	Suggestions []CodeExample `json:"suggestions,omitempty"`
}

// HallucinationReport is the final output of the hallucination detector.
type HallucinationReport struct {
	ScriptPath       string               `json:"script_path,omitempty"`
	OverallRisk      RiskLevel            `json:"overall_risk"`
	OverallConfidence float64             `json:"overall_confidence"`
	Items            []HallucinationItem `json:"items"`
	GeneratedAt      time.Time            `json:"generated_at"`
}
