package hydrate

import "fmt"

// StationNotFoundError means the requested external id is absent from
// the metadata provider's list. Fatal: predictions and images are keyed
// off metadata, so nothing else can be resolved for the station.
type StationNotFoundError struct {
	ExternalID string
}

func (e *StationNotFoundError) Error() string {
	return fmt.Sprintf("metadata for station %s could not be found", e.ExternalID)
}

// ProviderError means a remote provider call failed or timed out.
// Whether it is fatal depends on which provider: metadata always,
// predictions by policy, maps never.
type ProviderError struct {
	Provider   string
	ExternalID string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.ExternalID == "" {
		return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s provider for station %s: %v", e.Provider, e.ExternalID, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
