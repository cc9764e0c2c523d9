package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tryers-jsshin/btq-hr-system-sub000/ledger"
)

func TestAddMonthsClamped_ShortMonths(t *testing.T) {
	jan31 := ledger.NewDate(2024, time.January, 31)

	assert.Equal(t, ledger.NewDate(2024, time.February, 29), jan31.AddMonthsClamped(1)) // leap year
	assert.Equal(t, ledger.NewDate(2024, time.March, 31), jan31.AddMonthsClamped(2))
	assert.Equal(t, ledger.NewDate(2024, time.April, 30), jan31.AddMonthsClamped(3))

	jan31NonLeap := ledger.NewDate(2023, time.January, 31)
	assert.Equal(t, ledger.NewDate(2023, time.February, 28), jan31NonLeap.AddMonthsClamped(1))
}

func TestAddMonthsClamped_RegularDaysUnaffected(t *testing.T) {
	mar15 := ledger.NewDate(2024, time.March, 15)
	assert.Equal(t, ledger.NewDate(2024, time.April, 15), mar15.AddMonthsClamped(1))
	assert.Equal(t, ledger.NewDate(2025, time.January, 15), mar15.AddMonthsClamped(10))
}

func TestParseDate_RoundTrip(t *testing.T) {
	d, err := ledger.ParseDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", d.String())

	_, err = ledger.ParseDate("01/03/2024")
	assert.Error(t, err)
}

func TestYearsSince(t *testing.T) {
	join := ledger.NewDate(2020, time.March, 1)

	assert.InDelta(t, 4.0, ledger.NewDate(2024, time.March, 1).YearsSince(join), 0.01)
	assert.InDelta(t, 0.5, ledger.NewDate(2020, time.August, 30).YearsSince(join), 0.01)
}
