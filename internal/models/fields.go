package models

import "strings"

// SplitFields splits a delimiter-joined field string into its values.
// An empty string yields a single empty field, matching how a one-field note is stored.
func SplitFields(joined string) []string {
	return strings.Split(joined, FieldSeparator)
}

// JoinFields is the inverse of SplitFields for values without the separator byte.
func JoinFields(values []string) string {
	return strings.Join(values, FieldSeparator)
}
