package concentration

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// IndexName identifies a concentration index.
type IndexName string

const (
	IndexCR    IndexName = "CR"
	IndexHHI   IndexName = "HHI"
	IndexMOCDI IndexName = "MOCDI"
	IndexHI    IndexName = "HI"
)

// ParseIndexName accepts index names case-insensitively; "CR4" style labels
// return the CR index and the window.
func ParseIndexName(s string) (IndexName, int, bool) {
	switch up := strings.ToUpper(strings.TrimSpace(s)); {
	case up == "HHI":
		return IndexHHI, 0, true
	case up == "MOCDI":
		return IndexMOCDI, 0, true
	case up == "HI":
		return IndexHI, 0, true
	case up == "CR":
		return IndexCR, 0, true
	case len(up) > 2 && up[:2] == "CR":
		n := 0
		for _, c := range up[2:] {
			if c < '0' || c > '9' {
				return "", 0, false
			}
			n = n*10 + int(c-'0')
		}
		return IndexCR, n, true
	}
	return "", 0, false
}

// Calculators take ranked shares as fractions of 1.0.

// CR sums the top n shares. Groups smaller than n sum every share.
func CR(shares []float64, n int) (float64, error) {
	if len(shares) == 0 {
		return 0, &EmptyGroupError{}
	}
	if n < 1 {
		return 0, ErrInvalidWindow
	}
	if n > len(shares) {
		n = len(shares)
	}
	return floats.Sum(shares[:n]), nil
}

// HHI is the sum of squared shares on the 0–10000 scale.
func HHI(shares []float64) (float64, error) {
	if len(shares) == 0 {
		return 0, &EmptyGroupError{}
	}
	pp := percentagePoints(shares)
	return floats.Dot(pp, pp), nil
}

// MOCDI divides HHI by the square root of the entity count. A monopoly keeps the
// HHI ceiling of 10000; fewer competitors shrink the divisor.
func MOCDI(shares []float64) (float64, error) {
	hhi, err := HHI(shares)
	if err != nil {
		return 0, err
	}
	return hhi / math.Sqrt(float64(len(shares))), nil
}

// HI is the Hirschman index: the sum of square-rooted percentage-point shares.
func HI(shares []float64) (float64, error) {
	if len(shares) == 0 {
		return 0, &EmptyGroupError{}
	}
	var sum float64
	for _, p := range percentagePoints(shares) {
		sum += math.Sqrt(p)
	}
	return sum, nil
}

func percentagePoints(shares []float64) []float64 {
	pp := make([]float64, len(shares))
	floats.ScaleTo(pp, 100, shares)
	return pp
}
