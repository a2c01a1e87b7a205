package models

// UnknownName is shown when a referenced record no longer exists
const UnknownName = "Unknown"

// NameOr returns name when the lookup succeeded and UnknownName otherwise
func NameOr(name string, ok bool) string {
	if !ok {
		return UnknownName
	}
	return name
}
