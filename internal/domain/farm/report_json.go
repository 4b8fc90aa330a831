package farm

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// jsonFloat encodes non-finite values as the strings "NaN", "+Inf" and "-Inf",
// which plain JSON numbers cannot carry.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = jsonFloat(v)
		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !(math.IsNaN(v) || math.IsInf(v, 0)) {
		return fmt.Errorf("invalid result %q", s)
	}
	*f = jsonFloat(v)
	return nil
}

// runReportJSON shadows Results so non-finite values survive encoding.
type runReportJSON struct {
	runReportAlias
	Results []jsonFloat `json:"results"`
}

type runReportAlias RunReport

// MarshalJSON encodes the report with non-finite results written as strings.
func (r RunReport) MarshalJSON() ([]byte, error) {
	out := runReportJSON{runReportAlias: runReportAlias(r)}
	if r.Results != nil {
		out.Results = make([]jsonFloat, len(r.Results))
		for i, v := range r.Results {
			out.Results[i] = jsonFloat(v)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the encoding produced by MarshalJSON.
func (r *RunReport) UnmarshalJSON(data []byte) error {
	var in runReportJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = RunReport(in.runReportAlias)
	if in.Results != nil {
		r.Results = make([]float64, len(in.Results))
		for i, v := range in.Results {
			r.Results[i] = float64(v)
		}
	}
	return nil
}
