package upstream

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// rejectionMarkers are the phrases a 4xx body must contain before the proxy
// considers a parameter-stripping retry. Anything else is not a rejection of
// an optional field and is surfaced as-is.
var rejectionMarkers = []string{
	"unsupported parameter",
	"unknown parameter",
	"invalid parameter",
	"unsupported_parameter",
	"unknown_parameter",
	"not supported",
	"does not support",
	"unrecognized request argument",
}

// strippableFields maps a keyword found in the rejection message to the
// payload fields removed in response. temperature and top_p travel together:
// an upstream that rejects one rejects the whole sampling group.
var strippableFields = []struct {
	keyword string
	fields  []string
}{
	{"temperature", []string{"temperature", "top_p"}},
	{"top_p", []string{"temperature", "top_p"}},
	{"tool", []string{"tools"}},
	{"reasoning", []string{"reasoning_effort"}},
	{"seed", []string{"seed"}},
}

// StripUnsupported inspects a client-error rejection and, when the body
// matches a known "unsupported optional parameter" pattern, returns the
// payload with the offending field group removed and true. Any other error
// class returns the payload unchanged and false: the caller surfaces it
// instead of retrying.
func StripUnsupported(payload []byte, apiErr *APIError) ([]byte, bool) {
	if apiErr.StatusCode < http.StatusBadRequest || apiErr.StatusCode >= http.StatusInternalServerError {
		return payload, false
	}

	message := strings.ToLower(gjson.Get(apiErr.Body, "error.message").String())
	if message == "" {
		message = strings.ToLower(apiErr.Body)
	}
	param := strings.ToLower(gjson.Get(apiErr.Body, "error.param").String())

	if !looksLikeRejection(message) {
		return payload, false
	}

	out := payload
	changed := false
	for _, group := range strippableFields {
		if !strings.Contains(message, group.keyword) && !strings.Contains(param, group.keyword) {
			continue
		}
		for _, field := range group.fields {
			if !gjson.GetBytes(out, field).Exists() {
				continue
			}
			stripped, err := sjson.DeleteBytes(out, field)
			if err != nil {
				continue
			}
			out = stripped
			changed = true
		}
	}

	return out, changed
}

func looksLikeRejection(message string) bool {
	for _, marker := range rejectionMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
