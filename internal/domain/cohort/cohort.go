package cohort

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Cohort is a saved filter over one clinical table.
type Cohort struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"-"`
	CohortID    string         `gorm:"column:cohort_id;uniqueIndex;not null" json:"cohort_id"`
	Table       string         `gorm:"column:table_name;not null;index:idx_cohort_definition" json:"table"`
	Year        *int           `gorm:"column:year;index:idx_cohort_definition" json:"year,omitempty"`
	FeaturesKey string         `gorm:"column:features_key;not null;index:idx_cohort_definition" json:"-"`
	Features    datatypes.JSON `gorm:"column:features" json:"features"`
	Size        int            `gorm:"column:size;not null" json:"size"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (Cohort) TableName() string { return "cohort" }

func (c *Cohort) DecodeFeatures() (Features, error) {
	out := Features{}
	if c == nil || len(c.Features) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(c.Features, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CohortName associates a human-readable name with a cohort id within a table.
type CohortName struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	Table     string    `gorm:"column:table_name;not null;uniqueIndex:idx_cohort_name" json:"table"`
	Name      string    `gorm:"column:name;not null;uniqueIndex:idx_cohort_name" json:"name"`
	CohortID  string    `gorm:"column:cohort_id;not null;index" json:"cohort_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (CohortName) TableName() string { return "cohort_name" }

// Ref identifies the population a statistic is computed over: either a saved
// cohort or an ad-hoc definition.
type Ref struct {
	CohortID string
	Table    string
	Year     *int
	Features Features
}

func (r Ref) Key() string {
	year := "all"
	if r.Year != nil {
		year = jsonInt(*r.Year)
	}
	return r.Table + "|" + year + "|" + r.Features.Key()
}

func jsonInt(v int) string {
	b, _ := json.Marshal(v)
	return string(b)
}
