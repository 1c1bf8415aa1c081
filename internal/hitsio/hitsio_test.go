package hitsio

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackreco/internal/hits"
)

const sampleJSON = `{
  "events": [
    {"id": 12, "hits": [
      {"channel": 3, "layer": 1, "superlayer": 0, "left_x": -1.5, "right_x": 1.5, "wire_z": 0},
      {"channel": 7, "layer": 2, "superlayer": 0, "left_x": 2.0, "right_x": 4.0, "wire_z": 13,
       "fpga": 1, "tdc_channel": 40, "drift_time": 180.5, "wire_x": 3.0}
    ]},
    {"id": 13, "hits": []}
  ]
}`

func TestReadJSON(t *testing.T) {
	t.Parallel()

	events, err := ReadJSON(strings.NewReader(sampleJSON))
	require.NoError(t, err)

	want := []hits.Event{
		{ID: 12, Hits: []hits.Hit{
			{Channel: 3, Layer: 1, SuperLayer: 0, LeftX: -1.5, RightX: 1.5, WireZ: 0},
			{Channel: 7, Layer: 2, SuperLayer: 0, LeftX: 2, RightX: 4, WireZ: 13,
				FPGA: 1, TDCChannel: 40, DriftTime: 180.5, WireX: 3},
		}},
		{ID: 13, Hits: []hits.Hit{}},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("ReadJSON mismatch (-want +got):\n%s", diff)
	}
}

func TestReadJSON_SchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: `{"events": [`},
		{name: "missing events", doc: `{}`},
		{name: "layer out of range", doc: `{"events":[{"id":1,"hits":[{"channel":1,"layer":5,"superlayer":0,"left_x":0,"right_x":0,"wire_z":0}]}]}`},
		{name: "superlayer out of range", doc: `{"events":[{"id":1,"hits":[{"channel":1,"layer":1,"superlayer":4,"left_x":0,"right_x":0,"wire_z":0}]}]}`},
		{name: "missing right_x", doc: `{"events":[{"id":1,"hits":[{"channel":1,"layer":1,"superlayer":0,"left_x":0,"wire_z":0}]}]}`},
		{name: "unknown field", doc: `{"events":[{"id":1,"hits":[],"extra":true}]}`},
		{name: "fractional id", doc: `{"events":[{"id":1.5,"hits":[]}]}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadJSON(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput), "got %v", err)
		})
	}
}

func TestWriteJSON_ReadBack(t *testing.T) {
	t.Parallel()

	in, err := ReadJSON(strings.NewReader(sampleJSON))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, in))
	out, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	out, err = ReadJSON(&buf)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReadCSV(t *testing.T) {
	t.Parallel()

	data := `EVENT,SL,LAYER,CHANNEL,X_LEFT_GLOB,X_RIGHT_GLOB,WIRE_Z_GLOB,FPGA,TDC_CHANNEL,HIT_DRIFT_TIME,WIRE_X_GLOB
5,1,1,10,-2.5,2.5,0,0,10,120,0
7,0,2,3,1,3,13,1,3,80.5,2
5,1,2,11,4,6,13,,,,
`
	events, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)

	want := []hits.Event{
		{ID: 5, Hits: []hits.Hit{
			{Channel: 10, Layer: 1, SuperLayer: 1, LeftX: -2.5, RightX: 2.5, WireZ: 0, TDCChannel: 10, DriftTime: 120},
			{Channel: 11, Layer: 2, SuperLayer: 1, LeftX: 4, RightX: 6, WireZ: 13},
		}},
		{ID: 7, Hits: []hits.Hit{
			{Channel: 3, Layer: 2, SuperLayer: 0, LeftX: 1, RightX: 3, WireZ: 13, FPGA: 1, TDCChannel: 3, DriftTime: 80.5, WireX: 2},
		}},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("ReadCSV mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSV_RequiredColumnsOnly(t *testing.T) {
	t.Parallel()

	data := "event, sl, layer, channel, x_left_glob, x_right_glob, wire_z_glob\n1,0,4,2,0.5,1.5,39\n"
	events, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, hits.Hit{Channel: 2, Layer: 4, LeftX: 0.5, RightX: 1.5, WireZ: 39}, events[0].Hits[0])
}

func TestReadCSV_Errors(t *testing.T) {
	t.Parallel()

	header := "EVENT,SL,LAYER,CHANNEL,X_LEFT_GLOB,X_RIGHT_GLOB,WIRE_Z_GLOB\n"
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "empty", data: "", wantErr: "missing header"},
		{name: "missing column", data: "EVENT,SL,LAYER\n1,0,1\n", wantErr: "missing column CHANNEL"},
		{name: "bad float", data: header + "1,0,1,1,abc,0,0\n", wantErr: "line 2: column X_LEFT_GLOB"},
		{name: "bad event", data: header + "1,0,1,1,0,0,0\nx,0,1,1,0,0,0\n", wantErr: "line 3: column EVENT"},
		{name: "layer range", data: header + "1,0,0,1,0,0,0\n", wantErr: "line 2: hit channel 1: layer 0"},
		{name: "superlayer range", data: header + "1,9,1,1,0,0,0\n", wantErr: "superlayer 9"},
		{name: "short row", data: header + "1,0,1\n", wantErr: "wrong number of fields"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadCSV(strings.NewReader(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
