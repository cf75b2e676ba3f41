package domain

// Variable is one field retrieved for every run.
type Variable struct {
	Param    string // ECMWF short name
	Levelist string // pressure level in hPa, empty for surface fields
	File     string // target file name inside the model data folder
}

const (
	StreamEnsemble = "enfo"
	TypePerturbed  = "pf"
	gribFileSuffix = ".grib2"
	t850LevelHPa   = "850"
)

// DownloadVariables lists the fields needed to draw a meteogram.
var DownloadVariables = []Variable{
	{Param: "2t", File: "2t" + gribFileSuffix},
	{Param: "tp", File: "tp" + gribFileSuffix},
	{Param: "t", Levelist: t850LevelHPa, File: "t_" + t850LevelHPa + gribFileSuffix},
}
