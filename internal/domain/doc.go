// Package domain models daily climate observations published by the
// Deutscher Wetterdienst (DWD) open-data portal and their reduction into a
// regional daily series.
//
// # Data Source
//
// Daily climate values ("KL" dataset) live under
// https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/daily/kl/
// in two folders:
//
//	historical/  long-term, quality-controlled archives, one zip per station:
//	             tageswerte_KL_<id5>_<from>_<to>_hist.zip
//	recent/      rolling window of roughly the last 500 days, one zip per station:
//	             tageswerte_KL_<id5>_akt.zip
//
// The historical folder also holds the station directory
// KL_Tageswerte_Beschreibung_Stationen.txt, a fixed-width ISO-8859-1 listing
// whose last named column is the federal state (Bundesland) used as region.
//
// # Measurement Columns
//
// Each archive contains a single produkt*.txt file, semicolon-delimited, with
// padded header names. The columns used here:
//
//	TMK  daily mean temperature at 2m, °C          -> TempMean
//	UPM  daily mean relative humidity, %           -> HumidityMean
//	TXK  daily maximum temperature at 2m, °C       -> TempMax
//	TNK  daily minimum temperature at 2m, °C       -> TempMin
//	SDK  daily sunshine duration, h                -> SunshineDuration
//	FM   daily mean wind speed, m/s                -> WindSpeed
//
// MESS_DATUM is the measurement date as YYYYMMDD.
//
// # Missing Values
//
// DWD writes -999 (rendered as "-999.0" or "-999") instead of leaving a cell
// empty. [ReplaceSentinels] turns those into nil before anything is averaged;
// a nil measurement never contributes to a mean.
//
// # Regions
//
// A region is one of the 16 German federal states listed in [Regions]. Names
// are matched exactly, including umlauts ("Baden-Württemberg", "Thüringen").
package domain
