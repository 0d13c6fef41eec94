package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpowerquality/opq.report/internal/protocol"
)

func measurementLine(t *testing.T) string {
	t.Helper()
	p := protocol.NewPacket()
	p.SetType(protocol.TypeMeasurement)
	p.SetDeviceID(42)
	p.SetSequenceNumber(9)
	p.SetTimestamp(1700000000000)
	p.SetMeasurement(59.98, 120.5)
	p.SetChecksum()
	return p.TransportString()
}

func alertLine(t *testing.T, corrupt bool) string {
	t.Helper()
	p := protocol.NewPacket()
	p.SetType(protocol.TypeAlertVoltage)
	p.SetDeviceID(7)
	p.SetAlert(131.2, 250)
	p.SetChecksum()
	if corrupt {
		p.SetBitfield(1)
	}
	return p.TransportString()
}

func TestRunArgsText(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{measurementLine(t)}, strings.NewReader(""), &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	text := out.String()
	assert.Contains(t, text, "packet 1\n")
	assert.Contains(t, text, "header        0x00C0FFEE (ok=true)")
	assert.Contains(t, text, "type          measurement (code=0 known=true)")
	assert.Contains(t, text, "device        42")
	assert.Contains(t, text, "frequency     59.98 Hz")
	assert.Contains(t, text, "voltage       120.5 V")
	assert.Contains(t, text, "ok=true")
}

func TestRunStdinJSON(t *testing.T) {
	stdin := strings.NewReader(measurementLine(t) + "\n\n# diagnostic\n" + alertLine(t, false) + "\n")
	var out, errOut bytes.Buffer
	code := run([]string{"-json"}, stdin, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, errOut.String(), "skipping non-packet line")

	dec := json.NewDecoder(&out)
	var first, second protocol.Description
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	assert.False(t, dec.More())

	require.NotNil(t, first.Measurement)
	assert.Equal(t, int64(42), first.DeviceID)
	require.NotNil(t, second.Alert)
	assert.Equal(t, 131.2, second.Alert.Value)
	assert.Equal(t, int64(250), second.Alert.Duration)
	assert.True(t, second.ChecksumOK)
}

func TestRunStrictChecksum(t *testing.T) {
	bad := alertLine(t, true)

	var out, errOut bytes.Buffer
	assert.Equal(t, 0, run([]string{bad}, nil, &out, &errOut))
	assert.Contains(t, out.String(), "ok=false")

	out.Reset()
	assert.Equal(t, 1, run([]string{"-strict", bad}, nil, &out, &errOut))
}

func TestRunErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, run([]string{"-nope"}, nil, &out, &errOut))
	assert.Equal(t, 1, run([]string{"-pcap", "/does/not/exist.pcap"}, nil, &out, &errOut))
}

func TestRunVersion(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 0, run([]string{"-version"}, nil, &out, &errOut))
	assert.True(t, strings.HasPrefix(out.String(), "opqdump "))
}
