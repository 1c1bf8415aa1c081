// Package hitsio reads detector events from JSON documents and flat CSV hit
// tables.
package hitsio

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/banshee-data/trackreco/internal/hits"
)

// ErrInvalidInput wraps every schema, parse or range error.
var ErrInvalidInput = errors.New("invalid hit input")

const schemaURL = "https://github.com/banshee-data/trackreco/schemas/events.schema.json"

//go:embed events.schema.json
var eventsSchema []byte

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(eventsSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

type document struct {
	Events []hits.Event `json:"events"`
}

// ReadJSON reads a {"events": [...]} document. The payload is checked against
// the embedded schema before it is decoded.
func ReadJSON(r io.Reader) ([]hits.Event, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return doc.Events, nil
}

// WriteJSON writes events in the format ReadJSON accepts.
func WriteJSON(w io.Writer, events []hits.Event) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if events == nil {
		events = []hits.Event{}
	}
	return enc.Encode(document{Events: events})
}

// CSV column names. The optional columns carry readout metadata used only by
// the export stage.
const (
	ColEvent      = "EVENT"
	ColSuperLayer = "SL"
	ColLayer      = "LAYER"
	ColChannel    = "CHANNEL"
	ColLeftX      = "X_LEFT_GLOB"
	ColRightX     = "X_RIGHT_GLOB"
	ColWireZ      = "WIRE_Z_GLOB"
	ColFPGA       = "FPGA"
	ColTDCChannel = "TDC_CHANNEL"
	ColDriftTime  = "HIT_DRIFT_TIME"
	ColWireX      = "WIRE_X_GLOB"
)

var requiredColumns = []string{ColEvent, ColSuperLayer, ColLayer, ColChannel, ColLeftX, ColRightX, ColWireZ}

// ReadCSV reads a flat hit table with a header row. Rows are grouped into
// events by the EVENT column; events keep the order in which their first hit
// appears and hits keep row order.
func ReadCSV(r io.Reader) ([]hits.Event, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: missing header", ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToUpper(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %s", ErrInvalidInput, name)
		}
	}

	var events []hits.Event
	index := make(map[int64]int)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		line, _ := cr.FieldPos(0)

		p := rowParser{rec: rec, cols: cols}
		id := p.parseInt64(ColEvent)
		h := hits.Hit{
			SuperLayer: p.parseInt(ColSuperLayer),
			Layer:      p.parseInt(ColLayer),
			Channel:    p.parseInt(ColChannel),
			LeftX:      p.parseFloat(ColLeftX),
			RightX:     p.parseFloat(ColRightX),
			WireZ:      p.parseFloat(ColWireZ),
			FPGA:       p.optionalInt(ColFPGA),
			TDCChannel: p.optionalInt(ColTDCChannel),
			DriftTime:  p.optionalFloat(ColDriftTime),
			WireX:      p.optionalFloat(ColWireX),
		}
		if p.err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidInput, line, p.err)
		}
		if err := h.Validate(); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidInput, line, err)
		}

		i, ok := index[id]
		if !ok {
			i = len(events)
			index[id] = i
			events = append(events, hits.Event{ID: id})
		}
		events[i].Hits = append(events[i].Hits, h)
	}
	return events, nil
}

// rowParser converts CSV fields, keeping the first error.
type rowParser struct {
	rec  []string
	cols map[string]int
	err  error
}

func (p *rowParser) field(name string) (string, bool) {
	i, ok := p.cols[name]
	if !ok || i >= len(p.rec) {
		return "", false
	}
	s := strings.TrimSpace(p.rec[i])
	return s, s != ""
}

func (p *rowParser) parseInt64(name string) int64 {
	s, _ := p.field(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %w", name, err)
	}
	return v
}

func (p *rowParser) parseInt(name string) int {
	return int(p.parseInt64(name))
}

func (p *rowParser) parseFloat(name string) float64 {
	s, _ := p.field(name)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %w", name, err)
	}
	return v
}

func (p *rowParser) optionalInt(name string) int {
	if _, ok := p.field(name); !ok {
		return 0
	}
	return p.parseInt(name)
}

func (p *rowParser) optionalFloat(name string) float64 {
	if _, ok := p.field(name); !ok {
		return 0
	}
	return p.parseFloat(name)
}
