package journal

import (
	"fmt"
	"sort"
	"time"

	"github.com/byxorna/asynctable/pkg/config"
	"github.com/byxorna/asynctable/pkg/text"
	cal "github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
)

// Calendar decides the title, tags and icon of a day.
type Calendar struct {
	cal *cal.BusinessCalendar

	weekendTags []string
	workdayTags []string
	holidayTags []string
}

func NewCalendar(c config.Config) *Calendar {
	bc := cal.NewBusinessCalendar()
	bc.AddHoliday(
		us.NewYear,
		us.MemorialDay,
		us.IndependenceDay,
		us.Juneteenth,
		us.DayAfterThanksgivingDay,
		us.LaborDay,
		us.ThanksgivingDay,
		us.ChristmasDay,
	)
	bc.SetWorkHours(c.StartWorkHours, c.EndWorkHours)
	return &Calendar{
		cal:         bc,
		weekendTags: c.WeekendTags,
		workdayTags: c.WorkdayTags,
		holidayTags: c.HolidayTags,
	}
}

func (c *Calendar) holiday(t time.Time) (string, bool) {
	actual, observed, h := c.cal.IsHoliday(t)
	if (actual || observed) && h != nil {
		return h.Name, true
	}
	return "", false
}

// Title is "2006-01-02 Monday", plus the holiday name if there is one.
func (c *Calendar) Title(t time.Time) string {
	title := t.Format("2006-01-02 Monday")
	if name, ok := c.holiday(t); ok {
		title += fmt.Sprintf(" (%s)", name)
	}
	return title
}

func (c *Calendar) Tags(t time.Time) []string {
	var tags []string
	if _, ok := c.holiday(t); ok {
		tags = append(tags, c.holidayTags...)
	}
	if c.cal.IsWorkday(t) {
		tags = append(tags, c.workdayTags...)
	} else {
		tags = append(tags, c.weekendTags...)
	}

	sort.Strings(tags)
	return tags
}

func (c *Calendar) Icon(t time.Time) string {
	if _, ok := c.holiday(t); ok {
		return text.EmojiHoliday
	}
	if !c.cal.IsWorkday(t) {
		return text.EmojiWeekend
	}
	return text.EmojiDay
}
