package models

// Coordinates is a resolved city location. Name is the canonical display
// name returned by reverse geocoding.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Name      string  `json:"name"`
}

// Forecast mirrors the /data/2.5/forecast payload. Only the fields the widget
// renders are decoded; the caches store it as JSON.
type Forecast struct {
	City ForecastCity    `json:"city"`
	List []ForecastEntry `json:"list"`
}

type ForecastCity struct {
	Name    string `json:"name"`
	Country string `json:"country,omitempty"`
}

// ForecastEntry is one point of the time series. Temperatures are in kelvin.
type ForecastEntry struct {
	Dt   int64 `json:"dt,omitempty"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []ForecastCondition `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

type ForecastCondition struct {
	Main        string `json:"main,omitempty"`
	Description string `json:"description"`
}

// First returns the first entry of the time series, if any.
func (f Forecast) First() (ForecastEntry, bool) {
	if len(f.List) == 0 {
		return ForecastEntry{}, false
	}
	return f.List[0], true
}
