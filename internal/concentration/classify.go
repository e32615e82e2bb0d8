package concentration

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Categories of the default antitrust profile.
const (
	CRLow      = "Low concentration"
	CRModerate = "Moderate concentration"
	CRHigh     = "High concentration"

	HHIUnconcentrated = "Unconcentrated"
	HHIModerate       = "Moderately concentrated"
	HHIHigh           = "Highly concentrated"
)

// Band is a half-open interval [Lower, next band's Lower) mapped to a category.
type Band struct {
	Lower    float64 `json:"lower"`
	Category string  `json:"category"`
}

// Bands partition the real line: the first band starts at -Inf and every
// following band starts where the previous one ends.
type Bands []Band

// MakeBands builds bands from ascending cut points; categories has one more entry
// than cuts. A value equal to a cut belongs to the band above it.
func MakeBands(cuts []float64, categories []string) (Bands, error) {
	if len(categories) != len(cuts)+1 {
		return nil, fmt.Errorf("concentration: %d cuts need %d categories, got %d", len(cuts), len(cuts)+1, len(categories))
	}
	b := make(Bands, 0, len(categories))
	b = append(b, Band{Lower: math.Inf(-1), Category: categories[0]})
	for i, c := range cuts {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("concentration: cut %d is not finite", i)
		}
		if i > 0 && c <= cuts[i-1] {
			return nil, fmt.Errorf("concentration: cuts must be strictly ascending (%g after %g)", c, cuts[i-1])
		}
		if strings.TrimSpace(categories[i+1]) == "" {
			return nil, fmt.Errorf("concentration: category %d is blank", i+1)
		}
		b = append(b, Band{Lower: c, Category: categories[i+1]})
	}
	return b, nil
}

func mustBands(cuts []float64, categories ...string) Bands {
	b, err := MakeBands(cuts, categories)
	if err != nil {
		panic(err)
	}
	return b
}

// classifyPrecision snaps values before comparison so float noise such as
// 0.1+0.2+0.4 lands on the intended side of a boundary.
const classifyPrecision = 1e9

// Classify returns the category of v.
func (b Bands) Classify(v float64) (string, error) {
	if math.IsNaN(v) {
		return "", ErrNotANumber
	}
	if len(b) == 0 {
		return "", ErrUnclassified
	}
	if !math.IsInf(v, 0) {
		v = math.Round(v*classifyPrecision) / classifyPrecision
	}
	// index of the first band whose lower bound is above v
	i := sort.Search(len(b), func(i int) bool { return b[i].Lower > v })
	if i == 0 {
		// only reachable for -Inf when the first band does not start at -Inf
		return b[0].Category, nil
	}
	return b[i-1].Category, nil
}

// Profile is a named set of classification thresholds.
type Profile struct {
	Name string `json:"name"`
	// CR bands per window; windows without an entry use CRDefault.
	CR        map[int]Bands `json:"cr,omitempty"`
	CRDefault Bands         `json:"cr_default"`
	HHI       Bands         `json:"hhi"`
	MOCDI     Bands         `json:"mocdi"`
}

// BandsFor selects the bands for an index.
func (p Profile) BandsFor(index IndexName, window int) (Bands, error) {
	switch index {
	case IndexCR:
		if b, ok := p.CR[window]; ok {
			return b, nil
		}
		return p.CRDefault, nil
	case IndexHHI:
		return p.HHI, nil
	case IndexMOCDI:
		return p.MOCDI, nil
	}
	return nil, ErrUnclassified
}

// Classify maps an index value to its category under profile p.
func Classify(p Profile, index IndexName, window int, value float64) (string, error) {
	b, err := p.BandsFor(index, window)
	if err != nil {
		return "", err
	}
	return b.Classify(value)
}

// Built-in profile names.
const (
	ProfileAntitrust = "antitrust"
	ProfileMedia     = "media"
)

// AntitrustProfile returns the default thresholds: CR4 at 0.40/0.70 and HHI at 1500/2500.
// MOCDI shares HHI's 0–10000 range and mirrors its bands.
func AntitrustProfile() Profile {
	hhi := mustBands([]float64{1500, 2500}, HHIUnconcentrated, HHIModerate, HHIHigh)
	return Profile{
		Name:      ProfileAntitrust,
		CRDefault: mustBands([]float64{0.40, 0.70}, CRLow, CRModerate, CRHigh),
		HHI:       hhi,
		MOCDI:     hhi,
	}
}

// MediaProfile returns the broadcast-media thresholds with CR3, CR4 and CR8 tables.
func MediaProfile() Profile {
	five := []string{"No Concentration", "Low Concentration", "Moderate Concentration", "High Concentration", "Very High Concentration"}
	three := []string{"Not Concentrated", "Moderately Concentrated", "Highly Concentrated"}
	cr4 := mustBands([]float64{0.35, 0.50, 0.65, 0.75}, five...)
	return Profile{
		Name: ProfileMedia,
		CR: map[int]Bands{
			3: mustBands([]float64{0.35, 0.55}, "Low Concentration", "Moderate Concentration", "High Concentration"),
			4: cr4,
			8: mustBands([]float64{0.45, 0.70, 0.85, 0.90}, five...),
		},
		CRDefault: cr4,
		HHI:       mustBands([]float64{1000, 1800}, three...),
		MOCDI:     mustBands([]float64{300, 500}, three...),
	}
}

// LookupProfile resolves a profile by name, checking custom profiles first.
func LookupProfile(name string, custom map[string]Profile) (Profile, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = ProfileAntitrust
	}
	if p, ok := custom[key]; ok {
		return p, nil
	}
	switch key {
	case ProfileAntitrust:
		return AntitrustProfile(), nil
	case ProfileMedia:
		return MediaProfile(), nil
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
}
