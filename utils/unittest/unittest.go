// Package unittest provides test helpers and fixtures for the atlas core.
package unittest

import (
	"os"
	"testing"

	"github.com/dgraph-io/badger/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Logger returns a no-op logger for tests. Set the ATLAS_TEST_LOG environment
// variable to get debug output instead.
func Logger() zerolog.Logger {
	if os.Getenv("ATLAS_TEST_LOG") != "" {
		return zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.DebugLevel)
	}
	return zerolog.Nop()
}

// RunWithTempDir runs the test function with a temporary directory that is
// removed afterwards.
func RunWithTempDir(t testing.TB, f func(string)) {
	dir, err := os.MkdirTemp("", "atlas-test-")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, os.RemoveAll(dir))
	}()
	f(dir)
}

// BadgerDB opens a badger database in the given directory.
func BadgerDB(t testing.TB, dir string) *badger.DB {
	opts := badger.
		DefaultOptions(dir).
		WithKeepL0InMemory(true).
		WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	return db
}

// RunWithBadgerDB runs the test function with a temporary badger database
// that is torn down afterwards.
func RunWithBadgerDB(t testing.TB, f func(*badger.DB)) {
	RunWithTempDir(t, func(dir string) {
		db := BadgerDB(t, dir)
		defer func() {
			require.NoError(t, db.Close())
		}()
		f(db)
	})
}
