// Package cardid provides canonical normalization of external card identifiers.
package cardid

import "strings"

// Normalize strips leading zero characters from a card identifier string.
// Card identifiers follow an 8-digit zero-padded convention ("00012345") but
// file paths and remote image URLs use the unpadded form ("12345"). Every
// component that builds a path or URL from an identifier must go through
// this function; mixing padded and unpadded forms is the class of bug this
// exists to prevent.
//
// Empty input returns the empty string. Input that is all zeros returns "0".
func Normalize(identifier string) string {
	if identifier == "" {
		return ""
	}
	trimmed := strings.TrimLeft(identifier, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}
