package github

import (
	"fmt"
	"strings"
	"testing"
)

func TestParseAPIErrorFromBody(t *testing.T) {
	body := []byte(`{"message":"Validation Failed","documentation_url":"https://docs","errors":[{"resource":"Ref","field":"ref","code":"already_exists"}]}`)
	err := parseAPIErrorFromBody(422, body)
	if err.Message != "Validation Failed" || err.DocumentationURL != "https://docs" {
		t.Errorf("err = %+v", err)
	}
	if !strings.Contains(err.Error(), "Ref.ref: already_exists") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestParseAPIErrorFromBody_RawText(t *testing.T) {
	err := parseAPIErrorFromBody(502, []byte("bad gateway\n"))
	if err.Message != "bad gateway" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestErrorPredicates(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", &APIError{StatusCode: 404})
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound through wrap")
	}
	if !IsConflict(&APIError{StatusCode: 409}) {
		t.Error("IsConflict")
	}
	if !IsRateLimited(&APIError{StatusCode: 403, Message: "API rate limit exceeded"}) {
		t.Error("IsRateLimited 403")
	}
	if IsRateLimited(&APIError{StatusCode: 403, Message: "Resource not accessible"}) {
		t.Error("plain 403 is not rate limited")
	}
	if IsNotFound(fmt.Errorf("plain")) {
		t.Error("plain error is not 404")
	}
}
