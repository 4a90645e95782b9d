package hours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// 2024-01-15 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, 0, 0, time.UTC)
}

func TestShiftAt(t *testing.T) {
	s := DefaultSchedule()
	cases := []struct {
		when time.Time
		want Shift
	}{
		{at(15, 6, 0), Morning},
		{at(15, 10, 59), Morning},
		{at(15, 11, 0), Afternoon},
		{at(15, 16, 30), Evening},
		{at(15, 22, 0), LateNight},
		{at(15, 1, 30), LateNight},
		{at(15, 4, 0), LateNight},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, s.ShiftAt(tc.when), tc.when.Format(time.Kitchen))
	}
}

func TestHappyHourWeekdaysOnly(t *testing.T) {
	s := DefaultSchedule()
	assert.True(t, s.HappyHourAt(at(15, 16, 0)))
	assert.True(t, s.HappyHourAt(at(19, 17, 59)))
	assert.False(t, s.HappyHourAt(at(15, 18, 0)))
	assert.False(t, s.HappyHourAt(at(20, 17, 0)), "saturday")
}

func TestServiceOpen(t *testing.T) {
	ctx := DefaultSchedule().At(at(15, 12, 0))
	assert.True(t, ctx.ServiceOpen)
	assert.Equal(t, Afternoon, ctx.Shift)
	assert.False(t, DefaultSchedule().At(at(15, 23, 30)).ServiceOpen)
}

func TestWindowValidate(t *testing.T) {
	assert.NoError(t, Window{Start: "22:00", End: "02:00"}.Validate())
	assert.Error(t, Window{Start: "25:00", End: "02:00"}.Validate())
	assert.Error(t, Window{Start: "10", End: "02:00"}.Validate())
}
