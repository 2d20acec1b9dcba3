package model

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const dataURIPrefix = "data:"

// IsDataURI reports whether ref is an inline data: reference rather than a URL
func IsDataURI(ref string) bool {
	return strings.HasPrefix(ref, dataURIPrefix)
}

// DecodeDataURI splits a base64 data URI into its media type and payload.
func DecodeDataURI(ref string) (string, []byte, error) {
	if !IsDataURI(ref) {
		return "", nil, fmt.Errorf("not a data URI")
	}

	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, dataURIPrefix), ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URI: missing payload")
	}

	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("unsupported data URI encoding")
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data URI: %w", err)
	}

	return mediaType, data, nil
}

// EncodeDataURI builds a base64 data URI
func EncodeDataURI(mediaType string, data []byte) string {
	return dataURIPrefix + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
