package energy

import "math"

const (
	piSquared2 = 2 * math.Pi * math.Pi
	pi4        = 4 * math.Pi
	piHalf     = math.Pi / 2
)

// EmittedPower evaluates the beam space distribution: the power left at
// radius r from the beam centre for a target at range R.
//
//	Pe = I0 * exp(-(2 pi^2 r^2 w0^2) / (lambda^2 (R0^2 + R^2)))
func EmittedPower(I0, lambda, R, R0, r, w0 float64) float64 {
	denom := lambda * lambda * (R0*R0 + R*R)
	return I0 / math.Exp(piSquared2*r*r*w0*w0/denom)
}

// EmittedPowerLegacy is the beam-width formulation of [EmittedPower].
func EmittedPowerLegacy(I0, lambda, R, R0, r, w0 float64) float64 {
	denom := math.Pi * w0 * w0
	omega := (lambda * R) / denom
	omega0 := (lambda * R0) / denom
	w := w0 * math.Sqrt(omega0*omega0+omega*omega)
	return I0 * math.Exp((-2*r*r)/(w*w))
}

// ReceivedPower solves the laser radar equation.
//
//	Pr = I0 Dr2 etaSys sigma / (4 pi R^4 Bt2) *
//	     exp(-(2 pi^2 r^2 w0^2 / (lambda^2 (R0^2 + R^2)) + 2 R ae))
//
// Dr2 is the squared receiver diameter, Bt2 the squared beam divergence,
// etaSys the device efficiency, ae the atmospheric extinction coefficient and
// sigma the target cross-section.
func ReceivedPower(I0, lambda, R, R0, r, w0, Dr2, Bt2, etaSys, ae, sigma float64) float64 {
	rSquared := R * R
	numer := I0 * Dr2 * etaSys * sigma
	expon := math.Exp(
		(piSquared2*r*r*w0*w0)/(lambda*lambda*(R0*R0+rSquared)) +
			2*R*ae,
	)
	denom := pi4 * rSquared * rSquared * Bt2 * expon
	return numer / denom
}

// ReceivedPowerLegacy takes a precomputed emitted power Pe and atmospheric
// factor etaAtm instead of deriving them.
func ReceivedPowerLegacy(Pe, Dr2, R, Bt2, etaSys, etaAtm, sigma float64) float64 {
	return (Pe * Dr2) / (pi4 * math.Pow(R, 4) * Bt2) * etaSys * etaAtm * sigma
}

// AtmosphericFactor is the energy left after two-way attenuation by air
// particles. It lies in (0, 1] for non-negative R and ae.
func AtmosphericFactor(R, ae float64) float64 {
	return math.Exp(-2 * R * ae)
}

// CrossSection computes 4 pi f Alf cos(theta), where f is the target
// reflectance, Alf the illuminated area and theta the incidence angle.
func CrossSection(f, Alf, theta float64) float64 {
	return pi4 * f * Alf * math.Cos(theta)
}

// PhongBDRF evaluates the Phong reflectance for incidence angle phi,
// specularity ks in [0, 1] and specular exponent Ns >= 0.
func PhongBDRF(phi, ks, Ns float64) float64 {
	kd := 1 - ks
	diffuse := kd * math.Cos(phi)
	specularAngle := phi
	if phi > piHalf {
		specularAngle = phi - piHalf
	}
	specular := ks * math.Pow(math.Abs(math.Cos(specularAngle)), Ns)
	return diffuse + specular
}
