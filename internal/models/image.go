package models

// MapImage is a static map for one station, attached to the report as an
// inline image. ContentID is the cid the HTML body uses to reference it.
type MapImage struct {
	Bytes     []byte
	ContentID string
}
