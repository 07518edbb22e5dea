package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/san-kum/boldsim/internal/dynamo"
)

type ExportData struct {
	Run      *RunMetadata       `json:"run,omitempty"`
	Dt       float64            `json:"dt"`
	Steps    int                `json:"steps"`
	Times    []float64          `json:"times"`
	Total    []float64          `json:"total"`
	EV       []float64          `json:"ev"`
	IV       []float64          `json:"iv"`
	Metrics  map[string]float64 `json:"metrics"`
	Warnings []string           `json:"warnings,omitempty"`
}

func exportData(meta *RunMetadata, result *dynamo.Result) ExportData {
	data := ExportData{
		Run:     meta,
		Dt:      result.Dt,
		Steps:   result.StepsTaken,
		Times:   result.Times,
		Total:   result.Total,
		EV:      result.EV,
		IV:      result.IV,
		Metrics: result.Metrics,
	}
	for _, w := range result.Warnings {
		data.Warnings = append(data.Warnings, w.Error())
	}
	return data
}

// WriteJSON writes the run as indented JSON. meta may be nil.
func WriteJSON(w io.Writer, meta *RunMetadata, result *dynamo.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exportData(meta, result))
}

func ExportJSON(path string, meta *RunMetadata, result *dynamo.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, meta, result)
}

// WriteCSV writes one row per step with a header.
func WriteCSV(w io.Writer, result *dynamo.Result) error {
	return gocsv.Marshal(Rows(result), w)
}

func ExportCSV(path string, result *dynamo.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteCSV(file, result)
}
