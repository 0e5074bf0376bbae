package profile

// Fields is a server response where each field may be missing. A nil field
// was absent or null in the response.
type Fields struct {
	DisplayName *string
	Bio         *string
}

// Merge overlays incoming on current field by field. A missing field keeps
// the current value; a present field, including "", replaces it.
func Merge(current Data, incoming Fields) Data {
	merged := current
	if incoming.DisplayName != nil {
		merged.DisplayName = *incoming.DisplayName
	}
	if incoming.Bio != nil {
		merged.Bio = *incoming.Bio
	}
	return merged
}
