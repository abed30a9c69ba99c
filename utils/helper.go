package utils

import (
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func NewInt(i int) *int {
	return &i
}

func NewString(s string) *string {
	return &s
}

// IsIdentifier reports whether name is safe to use as a column or view name.
func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// IsIdentifierLike reports whether column holds identifiers ("id", "sale_id", "productId", "ID").
func IsIdentifierLike(column string) bool {
	lower := strings.ToLower(column)
	return lower == "id" || strings.HasSuffix(lower, "_id") || strings.HasSuffix(column, "Id") || strings.HasSuffix(column, "ID")
}

func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			// if not exists in map, append it, otherwise do nothing
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

func SplitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
