package cart

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/noah-isme/dansestudio/internal/pricing"
)

// Fallback name parts used when a legacy record carries no usable name.
const (
	fallbackFirstName = "Ukjent"
	fallbackLastName  = "Elev"
)

// ScheduleRef points at one selected schedule slot.
type ScheduleRef struct {
	ID       string `json:"id"`
	CourseID string `json:"courseId"`
	Day      string `json:"day,omitempty"`
	Time     string `json:"time,omitempty"`
}

// Item is one student's enrollment draft.
type Item struct {
	ID           string              `json:"id"`
	FirstName    string              `json:"firstName"`
	LastName     string              `json:"lastName"`
	Age          int                 `json:"age"`
	Courses      []pricing.Course    `json:"courses"`
	Schedules    []ScheduleRef       `json:"schedules"`
	SecondDancer bool                `json:"isSecondDancerInFamily"`
	Override     pricing.Eligibility `json:"familyDiscountOverride"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// FullName joins the first and last name.
func (i Item) FullName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// ExpiresAt returns the instant the item's time-to-live elapses.
func (i Item) ExpiresAt(ttl time.Duration) time.Time {
	return i.CreatedAt.Add(ttl)
}

// FamilyEligible returns the eligibility used for pricing. A pinned override
// wins over the stored flag.
func (i Item) FamilyEligible() bool {
	if v, ok := i.Override.Value(); ok {
		return v
	}
	return i.SecondDancer
}

func (i Item) clone() Item {
	out := i
	out.Courses = append([]pricing.Course(nil), i.Courses...)
	out.Schedules = append([]ScheduleRef(nil), i.Schedules...)
	return out
}

func nameKey(first, last string) string {
	return strings.ToLower(strings.TrimSpace(first)) + "\x00" + strings.ToLower(strings.TrimSpace(last))
}

// storedItem is the persisted record shape. Older snapshots carry a single
// combined name field instead of first and last name.
type storedItem struct {
	Item
	Name string `json:"name,omitempty"`
}

// MigrateLegacy upgrades a record persisted with a combined name by splitting
// on the first whitespace boundary. Records that already carry a first or last
// name are returned unchanged.
func MigrateLegacy(rec storedItem) storedItem {
	if rec.FirstName != "" || rec.LastName != "" {
		return rec
	}
	name := strings.TrimSpace(rec.Name)
	rec.Name = ""
	if name == "" {
		rec.FirstName = fallbackFirstName
		rec.LastName = fallbackLastName
		return rec
	}
	idx := strings.IndexFunc(name, unicode.IsSpace)
	if idx < 0 {
		rec.FirstName = name
		rec.LastName = fallbackLastName
		return rec
	}
	rec.FirstName = name[:idx]
	rec.LastName = strings.TrimSpace(name[idx:])
	if rec.LastName == "" {
		rec.LastName = fallbackLastName
	}
	return rec
}

// decodeSnapshot parses a persisted snapshot, upgrading legacy records. It
// reports whether any record was upgraded.
func decodeSnapshot(data []byte) ([]Item, bool, error) {
	var records []storedItem
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false, err
	}
	items := make([]Item, 0, len(records))
	migrated := false
	for _, rec := range records {
		upgraded := MigrateLegacy(rec)
		if upgraded.FirstName != rec.FirstName || upgraded.LastName != rec.LastName {
			migrated = true
		}
		items = append(items, upgraded.Item)
	}
	return items, migrated, nil
}

func encodeSnapshot(items []Item) ([]byte, error) {
	if items == nil {
		items = []Item{}
	}
	return json.Marshal(items)
}
