//go:build !integration

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bisq-support/review-engine/internal/model"
)

func sampleStatus() *model.CalibrationStatus {
	return &model.CalibrationStatus{
		SamplesCollected:      40,
		SamplesRequired:       100,
		AutoApproveThreshold:  0.90,
		SpotCheckThreshold:    0.75,
		GoodCount:             35,
		NeedsImprovementCount: 5,
	}
}

func TestPrintCalibration_Table(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printCalibration(&out, sampleStatus(), "table"))
	assert.Contains(t, out.String(), "40 / 100")
	assert.Contains(t, out.String(), "false")
	assert.NotContains(t, out.String(), "COMPLETED AT")
}

func TestPrintCalibration_YAMLUsesJSONNames(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printCalibration(&out, sampleStatus(), "yaml"))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 40, got["samples_collected"])
	assert.Equal(t, 35, got["good_count"])
}

func TestPrintCalibration_JSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printCalibration(&out, sampleStatus(), "json"))
	assert.Contains(t, out.String(), `"samples_required": 100`)
}
