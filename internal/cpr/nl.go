package cpr

import "math"

// nlThresholds holds the transition latitudes of the NL function, the
// number of longitude zones per latitude band. The values are fixed by
// the ADS-B standard; entry i is the upper bound of the band with
// NL = 59 - i.
var nlThresholds = [...]float64{
	10.47047130, 14.82817437, 18.18626357, 21.02939493,
	23.54504487, 25.82924707, 27.93898710, 29.91135686,
	31.77209708, 33.53993436, 35.22899598, 36.85025108,
	38.41241892, 39.92256684, 41.38651832, 42.80914012,
	44.19454951, 45.54626723, 46.86733252, 48.16039128,
	49.42776439, 50.67150166, 51.89342469, 53.09516153,
	54.27817472, 55.44378444, 56.59318756, 57.72747354,
	58.84763776, 59.95459277, 61.04917774, 62.13216659,
	63.20427479, 64.26616523, 65.31845310, 66.36171008,
	67.39646774, 68.42322022, 69.44242631, 70.45451075,
	71.45986473, 72.45884545, 73.45177442, 74.43893416,
	75.42056257, 76.39684391, 77.36789461, 78.33374083,
	79.29428225, 80.24923213, 81.19801349, 82.13956981,
	83.07199445, 83.99173563, 84.89166191, 85.75541621,
	86.53536998, 87.00000000,
}

// NL returns the number of longitude zones at the given latitude,
// from 59 near the equator down to 1 at the poles.
func NL(lat float64) int {
	abs := math.Abs(lat)
	for i, t := range nlThresholds {
		if abs < t {
			return 59 - i
		}
	}
	return 1
}
