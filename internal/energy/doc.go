// Package energy provides the radiometric kernel evaluated for every
// simulated laser pulse.
//
// All functions are pure and operate on float64 scalars in SI units:
//
//   - [EmittedPower]: Gaussian beam energy falloff away from the beam centre
//   - [ReceivedPower]: laser radar equation (Carlsson et al.)
//   - [AtmosphericFactor]: two-way attenuation in [0, 1]
//   - [CrossSection]: target cross-section (Wagner, 2010)
//   - [PhongBDRF]: diffuse + specular reflectance (Jutzi and Gross, 2009)
//
// Legacy variants of the power equations are kept alongside the current
// ones because existing calibrations depend on them. [Mode] selects between
// the two families for callers that evaluate a full pulse return.
//
// # Domain
//
// Nothing here validates its inputs. Degenerate ranges (R = 0) or zero beam
// parameters yield Inf or NaN, which callers are expected to filter.
package energy
