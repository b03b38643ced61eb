package types

import (
	"fmt"
	"strings"
)

// AcquisitionKind selects how a source's listing is obtained.
type AcquisitionKind string

const (
	AcquireStatic   AcquisitionKind = "static"
	AcquireRendered AcquisitionKind = "rendered"
	AcquireAPI      AcquisitionKind = "api"
)

// ParseAcquisitionKind validates a configured kind.
func ParseAcquisitionKind(s string) (AcquisitionKind, error) {
	switch k := AcquisitionKind(strings.ToLower(strings.TrimSpace(s))); k {
	case AcquireStatic, AcquireRendered, AcquireAPI:
		return k, nil
	default:
		return "", fmt.Errorf("unknown acquisition kind %q (valid: static, rendered, api)", s)
	}
}

// DocumentShape tells the acquirer which listing layout to expect.
type DocumentShape string

const (
	// ShapeCatalog is an arbitrary shop listing handled by the generic cascades.
	ShapeCatalog DocumentShape = "catalog"
	// ShapeBookCard is the fixed article.product_pod layout.
	ShapeBookCard DocumentShape = "book_card"
)

// ParseDocumentShape validates a configured shape. Empty means catalog.
func ParseDocumentShape(s string) (DocumentShape, error) {
	switch sh := DocumentShape(strings.ToLower(strings.TrimSpace(s))); sh {
	case "":
		return ShapeCatalog, nil
	case ShapeCatalog, ShapeBookCard:
		return sh, nil
	default:
		return "", fmt.Errorf("unknown document shape %q (valid: catalog, book_card)", s)
	}
}

// SourceSpec describes one listing to crawl. It is read-only during a run.
type SourceSpec struct {
	DisplayName     string          `mapstructure:"name"             yaml:"name"             json:"name"`
	EntryURL        string          `mapstructure:"url"              yaml:"url"              json:"url"`
	Category        string          `mapstructure:"category"         yaml:"category"         json:"category"`
	AcquisitionKind AcquisitionKind `mapstructure:"kind"             yaml:"kind"             json:"kind"`
	Shape           DocumentShape   `mapstructure:"shape"            yaml:"shape"            json:"shape"`
	PerSourceCap    int             `mapstructure:"per_source_cap"   yaml:"per_source_cap"   json:"per_source_cap"`
}

func (s SourceSpec) String() string {
	return fmt.Sprintf("%s (%s, %s)", s.DisplayName, s.AcquisitionKind, s.EntryURL)
}
