// Package catalog holds built-in system definitions.
package catalog

import (
	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/model"
)

// SolarSystemName is the kb key of the built-in Solar System.
const SolarSystemName = "sol"

// Mean J2000 elements: a in AU, angles in degrees, periods in days. Moon
// distances are given in kilometres and converted.
func body(btype model.BodyType, name string, radiusKm, mass, a, e, pomega, m0, period float64, sats ...*model.SystemDefinition) *model.SystemDefinition {
	return &model.SystemDefinition{
		Name:       name,
		Type:       btype.String(),
		RadiusKm:   radiusKm,
		Mass:       mass,
		Orbit:      model.DefinitionOf(model.ElementsFromDegrees(a, e, pomega, m0, period)),
		Satellites: sats,
	}
}

func moon(name string, radiusKm, mass, aKm, e, pomega, m0, period float64) *model.SystemDefinition {
	return body(model.Moon, name, radiusKm, mass, aKm/core.AUKm, e, pomega, m0, period)
}

// SolarSystem returns a fresh definition of the Sun, the planets with their
// major moons, Ceres, Pluto/Charon and comet Halley.
func SolarSystem() *model.SystemDefinition {
	return body(model.Star, "Sun", 695700, 1.98847e30, 0, 0, 0, 0, 0,
		body(model.Planet, "Mercury", 2439.7, 3.3011e23, 0.38709927, 0.20563593, 77.45779628, 174.79252722, 87.969),
		body(model.Planet, "Venus", 6051.8, 4.8675e24, 0.72333566, 0.00677672, 131.60246718, 50.37663232, 224.701),
		body(model.Planet, "Earth", 6371.0, 5.97237e24, 1.00000261, 0.01671123, 102.93768193, 357.52688973, 365.256,
			moon("Moon", 1737.4, 7.342e22, 384399, 0.0549, 83.3532, 135.27, 27.321661),
		),
		body(model.Planet, "Mars", 3389.5, 6.4171e23, 1.52371034, 0.09339410, 336.05637041, 19.39019754, 686.980,
			moon("Phobos", 11.267, 1.0659e16, 9376, 0.0151, 150.06, 91.06, 0.31891),
			moon("Deimos", 6.2, 1.4762e15, 23463.2, 0.00033, 260.73, 325.33, 1.263),
		),
		body(model.DwarfPlanet, "Ceres", 469.73, 9.3835e20, 2.7675, 0.0758, 153.9, 95.99, 1680.5),
		body(model.Planet, "Jupiter", 69911, 1.8982e27, 5.20288700, 0.04838624, 14.72847983, 19.66796068, 4332.59,
			moon("Io", 1821.6, 8.9319e22, 421700, 0.0041, 84.13, 342.02, 1.769137786),
			moon("Europa", 1560.8, 4.7998e22, 671034, 0.009, 88.97, 171.02, 3.551181),
			moon("Ganymede", 2634.1, 1.4819e23, 1070412, 0.0013, 192.42, 317.54, 7.15455296),
			moon("Callisto", 2410.3, 1.0759e23, 1882709, 0.0074, 52.64, 181.41, 16.6890184),
		),
		body(model.Planet, "Saturn", 58232, 5.6834e26, 9.53667594, 0.05386179, 92.59887831, 317.35536592, 10759.22,
			moon("Enceladus", 252.1, 1.08022e20, 237948, 0.0047, 211.92, 57.0, 1.370218),
			moon("Rhea", 763.8, 2.306518e21, 527108, 0.0012583, 256.61, 31.35, 4.518212),
			moon("Titan", 2574.73, 1.3452e23, 1221870, 0.0288, 186.59, 163.31, 15.945),
		),
		body(model.Planet, "Uranus", 25362, 8.6810e25, 19.18916464, 0.04725744, 170.95427630, 142.28382821, 30688.5,
			moon("Titania", 788.4, 3.4e21, 435910, 0.0011, 284.4, 24.6, 8.706234),
			moon("Oberon", 761.4, 3.076e21, 583520, 0.0014, 104.4, 283.1, 13.463234),
		),
		body(model.Planet, "Neptune", 24622, 1.02413e26, 30.06992276, 0.00859048, 44.96476227, 259.91520804, 60182,
			moon("Triton", 1353.4, 2.139e22, 354759, 0.000016, 344.0, 264.8, 5.876854),
		),
		body(model.DwarfPlanet, "Pluto", 1188.3, 1.303e22, 39.48211675, 0.24882730, 224.06891629, 14.86012204, 90560,
			moon("Charon", 606, 1.586e21, 19591, 0.0002, 146.1, 147.8, 6.3872304),
		),
		body(model.Comet, "Halley", 5.5, 2.2e14, 17.834, 0.96714, 169.75, 38.38, 27509),
	)
}

// BuildSolarSystem builds the Solar System hierarchy.
func BuildSolarSystem(opts ...core.BuildOption) (*core.Node, error) {
	return core.BuildFromDefinition(SolarSystem(), opts...)
}
