package filter

import (
	"errors"
	"math"
)

// WGS84 ellipsoid parameters.
const (
	wgs84A = 6378137.0           // semi-major axis in meters
	wgs84F = 1 / 298.257223563   // flattening
	wgs84B = wgs84A * (1 - wgs84F)
)

// ErrGeodesicNoConvergence is returned when the Vincenty iteration fails
// to converge, which happens for nearly antipodal point pairs.
var ErrGeodesicNoConvergence = errors.New("geodesic iteration did not converge")

const (
	vincentyTolerance = 1e-12
	vincentyMaxIter   = 200
)

// GeodesicDistance computes the ellipsoidal distance in meters between
// two points given in decimal degrees, using the Vincenty inverse formula
// on the WGS84 ellipsoid. Station selections span hundreds of kilometers,
// where spherical or flat-earth approximations are off by enough to move
// stations across the selection boundary.
func GeodesicDistance(lat1, lon1, lat2, lon2 float64) (float64, error) {
	if lat1 == lat2 && lon1 == lon2 {
		return 0, nil
	}

	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	l := (lon2 - lon1) * math.Pi / 180

	u1 := math.Atan((1 - wgs84F) * math.Tan(phi1))
	u2 := math.Atan((1 - wgs84F) * math.Tan(phi2))
	sinU1, cosU1 := math.Sincos(u1)
	sinU2, cosU2 := math.Sincos(u2)

	lambda := l
	var sinSigma, cosSigma, sigma, cos2Alpha, cos2SigmaM float64

	for i := 0; ; i++ {
		if i >= vincentyMaxIter {
			return 0, ErrGeodesicNoConvergence
		}

		sinLambda, cosLambda := math.Sincos(lambda)
		sinSigma = math.Sqrt(
			math.Pow(cosU2*sinLambda, 2) +
				math.Pow(cosU1*sinU2-sinU1*cosU2*cosLambda, 2))
		if sinSigma == 0 {
			// Coincident points
			return 0, nil
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)

		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cos2Alpha = 1 - sinAlpha*sinAlpha
		if cos2Alpha == 0 {
			// Equatorial line
			cos2SigmaM = 0
		} else {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cos2Alpha
		}

		c := wgs84F / 16 * cos2Alpha * (4 + wgs84F*(4-3*cos2Alpha))
		prev := lambda
		lambda = l + (1-c)*wgs84F*sinAlpha*
			(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))
		if math.Abs(lambda-prev) < vincentyTolerance {
			break
		}
	}

	u2Sq := cos2Alpha * (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B)
	a := 1 + u2Sq/16384*(4096+u2Sq*(-768+u2Sq*(320-175*u2Sq)))
	b := u2Sq / 1024 * (256 + u2Sq*(-128+u2Sq*(74-47*u2Sq)))
	deltaSigma := b * sinSigma * (cos2SigmaM + b/4*
		(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
			b/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))

	return wgs84B * a * (sigma - deltaSigma), nil
}
