package domain

import (
	"fmt"
	"slices"
)

// Regions lists the federal states recognized as region names.
var Regions = []string{
	"Baden-Württemberg",
	"Bayern",
	"Berlin",
	"Brandenburg",
	"Bremen",
	"Hamburg",
	"Hessen",
	"Mecklenburg-Vorpommern",
	"Niedersachsen",
	"Nordrhein-Westfalen",
	"Rheinland-Pfalz",
	"Saarland",
	"Sachsen",
	"Sachsen-Anhalt",
	"Schleswig-Holstein",
	"Thüringen",
}

// ValidateRegion returns an ErrInvalidArgument error unless name is one of Regions.
func ValidateRegion(name string) error {
	if !IsRegion(name) {
		return fmt.Errorf("%w: unknown region %q", ErrInvalidArgument, name)
	}
	return nil
}

// IsRegion reports whether name is a recognized region.
func IsRegion(name string) bool {
	return slices.Contains(Regions, name)
}
