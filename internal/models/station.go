package models

// RemoteStation is a single entry from the metadata provider's full
// station list.
type RemoteStation struct {
	ExternalID string
	Name       string
	Latitude   float64
	Longitude  float64
}

// Station is the in-memory record assembled by hydration for one report
// run. It is disposable: it carries no handle back into the store.
type Station struct {
	DBID       int64
	ExternalID string
	Name       string
	Latitude   float64
	Longitude  float64
	Tides      []TideEvent
	MapImage   *MapImage
}

// HasImage reports whether hydration attached a map image.
func (s *Station) HasImage() bool {
	return s.MapImage != nil && len(s.MapImage.Bytes) > 0
}
