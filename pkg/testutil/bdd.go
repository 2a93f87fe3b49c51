package testutil

import "testing"

// Given, When and Then name subtests so a failing scenario reads as a
// sentence in verbose output. Each returns false when its step failed, so
// a scenario can stop early.
func Given(t *testing.T, precondition string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("given "+precondition, fn)
}

func When(t *testing.T, action string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("when "+action, fn)
}

func Then(t *testing.T, outcome string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("then "+outcome, fn)
}
