package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplicationLabelPrefersStudentNumber(t *testing.T) {
	number := "DBTC-7-25"
	first := "Juan"
	last := "Dela Cruz"
	app := Application{ID: "app-1", StudentNumber: &number, FirstName: &first, LastName: &last}

	require.Equal(t, "DBTC-7-25", app.Label())
}

func TestApplicationLabelFallsBackToName(t *testing.T) {
	first := "Juan"
	last := "Dela Cruz"
	app := Application{ID: "app-1", FirstName: &first, LastName: &last}

	require.Equal(t, "Juan Dela Cruz", app.Label())
}

func TestApplicationLabelFallsBackToID(t *testing.T) {
	empty := ""
	app := Application{ID: "app-1", StudentNumber: &empty}

	require.Equal(t, "ID app-1", app.Label())
}

func TestApplicationFullNamePartial(t *testing.T) {
	last := "Dela Cruz"
	app := Application{LastName: &last}

	require.Equal(t, "Dela Cruz", app.FullName())
}
