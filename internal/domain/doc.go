// Package domain models ECMWF ensemble forecast runs and the city coordinates
// used to cut per-city meteograms out of them.
//
// # Forecast Runs
//
// The ECMWF ensemble (ENS, stream "enfo") is initialised four times a day at
// the synoptic hours 00, 06, 12 and 18 UTC. The 00 and 12 UTC runs reach 15
// days, the 06 and 18 UTC runs only 6 days. Lead times ("steps") are requested
// at these resolutions:
//
//	00/12 UTC: every 3 h from +3 h to +144 h, then every 6 h up to +360 h
//	06/18 UTC: every 3 h from +3 h to +144 h
//
// The schedule is a pure function of the run hour. See [ComputeSteps].
//
// Data for a run is published on the open-data portal several hours after the
// nominal run time; [LatestRun] picks the newest run that should be complete
// given a publication delay.
//
// # Variables
//
// Three fields are downloaded for every run, perturbed members only (type "pf"):
//
//	2t   2 m temperature (K)
//	tp   total precipitation, accumulated from the start of the run (m)
//	t    temperature at 850 hPa (K)
//
// # Coordinates
//
// Cities are resolved to a single (longitude, latitude) pair through a
// geocoding provider. Mapbox returns coordinates in [lon, lat] order and this
// package keeps that order everywhere. Longitudes are normalised to
// [-180, 180) so that the same place is never stored twice under 0–360 and
// ±180 conventions. Once a city has been resolved its coordinates never
// change; see [CoordinateResolver].
package domain
