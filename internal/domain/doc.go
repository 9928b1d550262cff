// Package domain models reservoir level series, forecasts, and risk assessments.
//
// # Data Source
//
// Daily records come from the hydrological monitoring network (one row per station per
// day). The level series is the spine: precipitation, temperature, and river flow are
// joined onto it by date and may be absent for any given day. The series store returns
// them ordered by date with at most one record per day.
//
// # Feature Order
//
// Model inputs always use the feature order
//
//	level, precipitation, temperature, mean_flow
//
// Per-station scalers store one (min, max) pair per feature in the same order. Missing
// weather values are treated as 0 before scaling, which is what the model saw in training.
//
// # Units
//
// Levels and capacities are stored volumes in hm³. Ratios in [ThresholdConfig] are
// fractions of the station capacity, so a high ratio of 0.95 on a 654 hm³ reservoir puts
// the high threshold at 621.3 hm³.
//
// # Risk Levels
//
// Four mutually exclusive levels, evaluated in this priority:
//
//	HIGH      expected max ≥ high ratio × capacity       severity 3
//	DROUGHT   expected min ≤ drought ratio × capacity    severity 4
//	MODERATE  expected max ≥ moderate ratio × capacity   severity 2
//	LOW       otherwise                                  severity 1
//
// Overflow is checked before drought. A track that swings through both bands is reported
// as HIGH.
//
// # Dates
//
// All dates are UTC midnights. An anchor date is the last day of known history; forecast
// day 1 is anchor + 1 day.
package domain
