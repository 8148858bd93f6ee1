package calibration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Document is the on-disk calibration record
type Document struct {
	SensorCalParam []Entry `json:"sensorCalParam" yaml:"sensorCalParam" cbor:"sensorCalParam"`
}

type Format int

const (
	FormatJSON Format = iota
	FormatYAML
	FormatCBOR
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatCBOR:
		return "cbor"
	}
	return "unknown"
}

// FormatFromPath picks the document codec from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cbor":
		return FormatCBOR, nil
	}
	return 0, fmt.Errorf("unsupported calibration file type %q", filepath.Ext(path))
}

func Marshal(f Format, doc Document) ([]byte, error) {
	if doc.SensorCalParam == nil {
		doc.SensorCalParam = []Entry{}
	}
	switch f {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatCBOR:
		return cbor.Marshal(doc)
	}
	return nil, fmt.Errorf("unsupported format %s", f)
}

func Unmarshal(f Format, data []byte) (Document, error) {
	var doc Document
	var err error
	switch f {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatCBOR:
		err = cbor.Unmarshal(data, &doc)
	default:
		return doc, fmt.Errorf("unsupported format %s", f)
	}
	if err != nil {
		return doc, fmt.Errorf("failed to decode %s calibration: %w", f, err)
	}
	return doc, nil
}

// Document returns the table as a calibration record
func (t *Table) Document() Document {
	return Document{SensorCalParam: t.Entries()}
}

// Load reads a calibration file into a new table, keeping the file's row order
func Load(path string) (*Table, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Unmarshal(f, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return NewTable(doc.SensorCalParam...), nil
}

func (t *Table) Save(path string) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := Marshal(f, t.Document())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
