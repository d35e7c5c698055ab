// Package testutil provides common test utilities and assertions.
package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertJSONEqual compares two JSON documents for equality, ignoring formatting.
func AssertJSONEqual(t *testing.T, expected, actual string, msgAndArgs ...interface{}) {
	t.Helper()

	var expectedJSON, actualJSON interface{}
	require.NoError(t, json.Unmarshal([]byte(expected), &expectedJSON), "expected JSON is invalid")
	require.NoError(t, json.Unmarshal([]byte(actual), &actualJSON), "actual JSON is invalid")

	assert.Equal(t, expectedJSON, actualJSON, msgAndArgs...)
}

// AssertDurationWithin asserts that a duration is within a tolerance of an expected value.
func AssertDurationWithin(t *testing.T, expected, actual, tolerance time.Duration, msgAndArgs ...interface{}) {
	t.Helper()

	diff := expected - actual
	if diff < 0 {
		diff = -diff
	}

	assert.LessOrEqual(t, diff, tolerance, msgAndArgs...)
}

// WaitFor polls cond every millisecond until it holds or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	require.Eventually(t, cond, timeout, time.Millisecond, msgAndArgs...)
}
