package evjson

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
)

func TestDecodeTelemetryFull(t *testing.T) {
	payload := []byte(`{
		"id":"CHJ-0042","rpt":"i","st":1,"ts":1767000000,
		"v":228.5,"p":1450,"e":320,"tpwh":125400,"up":86400,
		"ct":"ac","ill":false,"amt":12.5,"rt":18,
		"sid":"sess-9","tr":"txn-77"
	}`)

	sample, err := DecodeTelemetry(payload)
	require.NoError(t, err)

	assert.Equal(t, coremodel.DeviceID("CHJ-0042"), sample.DeviceID)
	assert.Equal(t, coremodel.ReportInterim, sample.Report)
	assert.Equal(t, coremodel.DeviceStatusRunning, sample.DeviceStatus)
	assert.Equal(t, int64(1767000000), sample.DeviceTime)
	require.NotNil(t, sample.CounterWh)
	assert.Equal(t, 125400.0, *sample.CounterWh)
	require.NotNil(t, sample.SessionID)
	assert.Equal(t, coremodel.SessionID("sess-9"), *sample.SessionID)
}

func TestDecodeTelemetryMinimal(t *testing.T) {
	sample, err := DecodeTelemetry([]byte(`{"id":"CHJ-1","rpt":"a","st":0,"ts":100}`))
	require.NoError(t, err)
	assert.Equal(t, coremodel.ReportAmbient, sample.Report)
	assert.Nil(t, sample.CounterWh)
	assert.Nil(t, sample.SessionID)
}

func TestDecodeTelemetryRejects(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"not json", `turn me on`, ErrMalformed},
		{"missing id", `{"rpt":"i","st":1,"ts":100}`, ErrMalformed},
		{"blank id", `{"id":"  ","rpt":"i","st":1,"ts":100}`, ErrMalformed},
		{"unknown report", `{"id":"d","rpt":"x","st":1,"ts":100}`, ErrUnknownReport},
		{"missing status", `{"id":"d","rpt":"i","ts":100}`, ErrMalformed},
		{"missing clock", `{"id":"d","rpt":"i","st":1}`, ErrMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeTelemetry([]byte(tc.payload))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestParseReportTags(t *testing.T) {
	for tag, want := range map[string]coremodel.ReportType{
		"s": coremodel.ReportStart,
		"i": coremodel.ReportInterim,
		"f": coremodel.ReportFinal,
		"a": coremodel.ReportAmbient,
	} {
		got, ok := coremodel.ParseReportType(tag)
		if !ok || got != want {
			t.Fatalf("tag %q = %v/%v, want %v", tag, got, ok, want)
		}
	}
}
