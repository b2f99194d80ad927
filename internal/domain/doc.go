// Package domain implements the air-quality fusion and validation engine.
//
// # Data Sources
//
// Three kinds of observation feed the engine, each with a fixed trust weight:
//
//	sensor     ground monitoring stations, fetched from the sensor service (0.50)
//	satellite  gridded products (MODIS AOD, TROPOMI, CAMS) from the grid store (0.35)
//	excel      bulk-imported historical records (0.15)
//
// Satellite products arrive as regular lat/lon grids with a per-grid quality
// flag. Grids flagged invalid are excluded from every computation: fusion,
// calibration pair matching, and cross-validation alike.
//
// # Fusion
//
// Fusion collects the union of candidate locations across all sources,
// deduplicated by rounding coordinates to 4 decimal degrees (~11 m). At each
// location inside the requested bounding box it looks up the nearest sensor
// reading within 5 km, the satellite value from the nearest grid cell, and the
// nearest bulk record within 10 km, then blends whatever is present with the
// trust weights renormalized over the sources actually used. Distances are
// Euclidean in degree space scaled by 111 km/degree; at city scale the error
// against great-circle distance is negligible and the flat metric keeps
// nearest-match tie-breaking exact and cheap.
//
// Confidence per point rewards both trust-weight coverage and source count:
//
//	confidence = min(weightSum/1.0, 1) + min(n/3, 1)*0.3, capped at 1.0
//
// # AQI
//
// The AQI calculator implements the US EPA breakpoint interpolation
// (40 CFR Part 58, Appendix G). The full published tables are used, with
// separate 301-400 and 401-500 rows. The overall AQI for a set of pollutant
// readings is the maximum sub-index; concentrations <= 0 are treated as
// absent, not as a zero sub-index.
//
// # Calibration and Cross-Validation
//
// Calibration matches each sensor reading to the time-closest valid reference
// grid within a time window, then fits ordinary least squares
// sensor -> reference. Degenerate inputs (all sensor values identical) fall
// back to the identity model rather than failing. Cross-validation compares
// each reading to the time-closest reference value and flags deviations
// strictly greater than the configured percentage threshold.
//
// All types in this package are value objects: created in one call, never
// mutated afterwards, safe to share across goroutines.
package domain
