// Package testutil provides assertion helpers for exercising RPC fabrics
// and generated clients in tests. This package is designed to be
// import-cycle safe and can be used from any package.
package testutil

import (
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AssertCode checks that err is a status error with the expected code and
// returns the status for further inspection.
func AssertCode(t *testing.T, err error, expected codes.Code) *status.Status {
	t.Helper()
	if err == nil && expected != codes.OK {
		t.Fatalf("expected status code %v, got nil error", expected)
	}
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected a status error, got %T: %v", err, err)
	}
	if st.Code() != expected {
		t.Errorf("expected status code %v, got %v (message: %s)", expected, st.Code(), st.Message())
	}
	return st
}

// AssertErrorContains checks that err mentions the expected substring.
func AssertErrorContains(t *testing.T, err error, expected string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", expected)
	}
	if !strings.Contains(err.Error(), expected) {
		t.Errorf("expected error containing %q, got %q", expected, err.Error())
	}
}

// AssertMetadata checks that md carries exactly the expected values under key.
func AssertMetadata(t *testing.T, md metadata.MD, key string, expected ...string) {
	t.Helper()
	got := md.Get(key)
	if len(got) != len(expected) {
		t.Errorf("expected metadata %s=%v, got %v", key, expected, got)
		return
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("expected metadata %s=%v, got %v", key, expected, got)
			return
		}
	}
}

// AssertNoMetadata checks that md has no values under key.
func AssertNoMetadata(t *testing.T, md metadata.MD, key string) {
	t.Helper()
	if got := md.Get(key); len(got) > 0 {
		t.Errorf("expected no metadata under %s, got %v", key, got)
	}
}

// MustSucceed fails the test immediately when a call that should work
// reports an error.
func MustSucceed(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
