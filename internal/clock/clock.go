// Package clock отдаёт текущее время в фиксированной гражданской зоне.
package clock

import (
	"fmt"
	"time"
)

// Clock источник текущего времени
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// Civil часы процесса, приведённые к заданной зоне
type Civil struct {
	loc *time.Location
}

// NewCivil загружает зону по имени IANA (например, Asia/Seoul)
func NewCivil(zone string) (*Civil, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", zone, err)
	}
	return &Civil{loc: loc}, nil
}

func (c *Civil) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *Civil) Location() *time.Location {
	return c.loc
}

// Fixed часы, которые всегда показывают одно и то же время; для тестов и ручных прогонов
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time {
	return f.At
}

func (f Fixed) Location() *time.Location {
	return f.At.Location()
}
