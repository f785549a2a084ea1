package audit

import "strings"

// FilterDAGIdentifiers keeps the identifiers matching the optional prefix and suffix, compared case-insensitively.
// An empty prefix or suffix does not constrain the result; when both are set an identifier must match both.
// Predicates are compared as given, so callers trim user input beforehand.
// The relative order of identifiers is preserved.
func FilterDAGIdentifiers(identifiers []string, prefix string, suffix string) []string {
	normalizedPrefix := strings.ToLower(prefix)
	normalizedSuffix := strings.ToLower(suffix)

	filtered := make([]string, 0, len(identifiers))
	for _, identifier := range identifiers {
		loweredIdentifier := strings.ToLower(identifier)
		if len(normalizedPrefix) > 0 && !strings.HasPrefix(loweredIdentifier, normalizedPrefix) {
			continue
		}
		if len(normalizedSuffix) > 0 && !strings.HasSuffix(loweredIdentifier, normalizedSuffix) {
			continue
		}
		filtered = append(filtered, identifier)
	}

	return filtered
}
