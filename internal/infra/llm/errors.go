package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	nerrors "nudge/internal/shared/errors"
)

const errorPreviewLimit = 240

// mapHTTPError turns a non-2xx completion response into a classified error.
func mapHTTPError(status int, body []byte) error {
	errType, errMessage := parseUpstreamError(body)
	msg := errMessage
	if msg == "" {
		msg = truncate(strings.TrimSpace(string(body)), errorPreviewLimit)
	}
	if errType != "" {
		msg = errType + ": " + msg
	}
	return nerrors.FromHTTPStatus(status, fmt.Errorf("completion request failed: %s", msg))
}

func parseUpstreamError(body []byte) (errType, errMessage string) {
	if len(body) == 0 {
		return "", ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	if payload.Error != nil {
		errType = strings.TrimSpace(payload.Error.Type)
		errMessage = strings.TrimSpace(payload.Error.Message)
	}
	if errMessage == "" {
		errMessage = strings.TrimSpace(payload.Message)
	}
	return truncate(errType, 64), truncate(errMessage, errorPreviewLimit)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
