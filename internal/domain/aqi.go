package domain

import (
	"fmt"
	"math"
	"sort"
)

// breakpoint is one row of an EPA AQI breakpoint table: concentrations in
// [CLo, CHi] map linearly onto AQI values [ILo, IHi]. Rows are inclusive on
// both sides as published; adjacent rows neither gap nor overlap because the
// published tables step CLo past the previous CHi by one unit of precision.
type breakpoint struct {
	CLo, CHi float64
	ILo, IHi int
}

// US EPA AQI breakpoints (40 CFR Part 58, Appendix G). Concentrations are in
// each pollutant's native unit: µg/m³ for PM2.5/PM10, ppm for CO, ppb for
// NO2/SO2/O3. The full published tables are authoritative, including the
// separate 301-400 and 401-500 rows.
var aqiBreakpoints = map[string][]breakpoint{
	"pm25": { // 24-hour, µg/m³
		{0.0, 12.0, 0, 50},
		{12.1, 35.4, 51, 100},
		{35.5, 55.4, 101, 150},
		{55.5, 150.4, 151, 200},
		{150.5, 250.4, 201, 300},
		{250.5, 350.4, 301, 400},
		{350.5, 500.4, 401, 500},
	},
	"pm10": { // 24-hour, µg/m³
		{0, 54, 0, 50},
		{55, 154, 51, 100},
		{155, 254, 101, 150},
		{255, 354, 151, 200},
		{355, 424, 201, 300},
		{425, 504, 301, 400},
		{505, 604, 401, 500},
	},
	"co": { // 8-hour, ppm
		{0.0, 4.4, 0, 50},
		{4.5, 9.4, 51, 100},
		{9.5, 12.4, 101, 150},
		{12.5, 15.4, 151, 200},
		{15.5, 30.4, 201, 300},
		{30.5, 40.4, 301, 400},
		{40.5, 50.4, 401, 500},
	},
	"no2": { // 1-hour, ppb
		{0, 53, 0, 50},
		{54, 100, 51, 100},
		{101, 360, 101, 150},
		{361, 649, 151, 200},
		{650, 1249, 201, 300},
		{1250, 1649, 301, 400},
		{1650, 2049, 401, 500},
	},
	"so2": { // 1-hour, ppb
		{0, 35, 0, 50},
		{36, 75, 51, 100},
		{76, 185, 101, 150},
		{186, 304, 151, 200},
		{305, 604, 201, 300},
		{605, 804, 301, 400},
		{805, 1004, 401, 500},
	},
	"o3": { // 8-hour, ppb
		{0, 54, 0, 50},
		{55, 70, 51, 100},
		{71, 85, 101, 150},
		{86, 105, 151, 200},
		{106, 200, 201, 300},
		{201, 404, 301, 400},
		{405, 604, 401, 500},
	},
}

// aqiCategories maps AQI ranges to their EPA labels.
var aqiCategories = []struct {
	lo, hi int
	label  string
}{
	{0, 50, "Good"},
	{51, 100, "Moderate"},
	{101, 150, "Unhealthy for Sensitive Groups"},
	{151, 200, "Unhealthy"},
	{201, 300, "Very Unhealthy"},
	{301, 500, "Hazardous"},
}

// maxAQI caps the index for concentrations beyond every table row.
const maxAQI = 500

// SubIndex computes the AQI sub-index for one pollutant concentration using
// the EPA interpolation formula
//
//	I = (IHi-ILo)/(CHi-CLo) * (C-CLo) + ILo
//
// rounded to the nearest integer. Concentrations beyond the last row return
// the capped maximum of 500. ok is false for pollutants without a table.
func SubIndex(pollutant string, concentration float64) (aqi int, ok bool) {
	table, known := aqiBreakpoints[pollutant]
	if !known {
		return 0, false
	}
	for _, bp := range table {
		if bp.CLo <= concentration && concentration <= bp.CHi {
			i := float64(bp.IHi-bp.ILo)/(bp.CHi-bp.CLo)*(concentration-bp.CLo) + float64(bp.ILo)
			return int(math.Round(i)), true
		}
	}
	if concentration > table[len(table)-1].CHi {
		return maxAQI, true
	}
	return 0, false
}

// ValidatePollutant returns ErrUnknownPollutant when no breakpoint table
// exists for the pollutant.
func ValidatePollutant(pollutant string) error {
	if _, known := aqiBreakpoints[pollutant]; !known {
		return fmt.Errorf("%w: %q", ErrUnknownPollutant, pollutant)
	}
	return nil
}

// OverallAQI computes the composite AQI: the maximum sub-index across all
// readings. Unknown pollutants and concentrations <= 0 are treated as absent.
// Returns 0 when nothing valid remains.
func OverallAQI(readings map[string]float64) int {
	overall := 0
	for pollutant, concentration := range readings {
		if concentration <= 0 {
			continue
		}
		if sub, ok := SubIndex(pollutant, concentration); ok && sub > overall {
			overall = sub
		}
	}
	return overall
}

// DominantPollutant returns the pollutant achieving the maximum sub-index,
// or "" when no reading is valid. Ties resolve to the alphabetically first
// pollutant so the answer is stable across map iteration orders.
func DominantPollutant(readings map[string]float64) string {
	pollutants := make([]string, 0, len(readings))
	for p := range readings {
		pollutants = append(pollutants, p)
	}
	sort.Strings(pollutants)

	dominant := ""
	best := -1
	for _, p := range pollutants {
		if readings[p] <= 0 {
			continue
		}
		if sub, ok := SubIndex(p, readings[p]); ok && sub > best {
			best = sub
			dominant = p
		}
	}
	return dominant
}

// SubIndices returns the per-pollutant sub-index for each known pollutant in
// readings. Concentrations <= 0 report a sub-index of 0.
func SubIndices(readings map[string]float64) map[string]int {
	out := make(map[string]int, len(readings))
	for pollutant, concentration := range readings {
		if _, known := aqiBreakpoints[pollutant]; !known {
			continue
		}
		if concentration <= 0 {
			out[pollutant] = 0
			continue
		}
		if sub, ok := SubIndex(pollutant, concentration); ok {
			out[pollutant] = sub
		}
	}
	return out
}

// Category returns the EPA category label for an AQI value. Values above 500
// are still Hazardous; negative values clamp to Good.
func Category(aqi int) string {
	for _, c := range aqiCategories {
		if c.lo <= aqi && aqi <= c.hi {
			return c.label
		}
	}
	if aqi > maxAQI {
		return "Hazardous"
	}
	return "Good"
}
