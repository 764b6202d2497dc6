package domain

import (
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// OrgDimension is one insurance organization. org_id is the natural key,
// org_name is refreshed in place on every sighting.
type OrgDimension struct {
	OrgKey    int64     `gorm:"column:org_key;primaryKey" json:"org_key"`
	OrgID     string    `gorm:"column:org_id;uniqueIndex" json:"org_id"`
	OrgName   string    `gorm:"column:org_name" json:"org_name"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (OrgDimension) TableName() string {
	return "dim_org"
}

// PlanTypeDimension is one plan type. The natural key is the lowercased type
// name, the display name keeps a readable form of the first sighting.
type PlanTypeDimension struct {
	PlanTypeKey  int64     `gorm:"column:plan_type_key;primaryKey" json:"plan_type_key"`
	PlanTypeName string    `gorm:"column:plan_type_name;uniqueIndex" json:"plan_type_name"`
	DisplayName  string    `gorm:"column:display_name" json:"display_name"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

func (PlanTypeDimension) TableName() string {
	return "dim_plan_type"
}

// DateDimension is one calendar day keyed by its YYYYMMDD integer.
type DateDimension struct {
	DateKey   int       `gorm:"column:date_key;primaryKey" json:"date_key"`
	FullDate  time.Time `gorm:"column:full_date" json:"full_date"`
	Year      int       `gorm:"column:year" json:"year"`
	Quarter   int       `gorm:"column:quarter" json:"quarter"`
	Month     int       `gorm:"column:month" json:"month"`
	Day       int       `gorm:"column:day" json:"day"`
	DayOfWeek int       `gorm:"column:day_of_week" json:"day_of_week"`
	ISOWeek   int       `gorm:"column:iso_week" json:"iso_week"`
	IsWeekend bool      `gorm:"column:is_weekend" json:"is_weekend"`
}

func (DateDimension) TableName() string {
	return "dim_date"
}

// PlanDimension is one plan document, keyed by the source objectId. All
// descriptive columns are refreshed in place on every load.
type PlanDimension struct {
	PlanKey         int64     `gorm:"column:plan_key;primaryKey" json:"plan_key"`
	PlanID          string    `gorm:"column:plan_id;uniqueIndex" json:"plan_id"`
	PlanName        string    `gorm:"column:plan_name" json:"plan_name"`
	OrgKey          int64     `gorm:"column:org_key" json:"org_key"`
	PlanTypeKey     int64     `gorm:"column:plan_type_key" json:"plan_type_key"`
	CreationDateKey int       `gorm:"column:creation_date_key" json:"creation_date_key"`
	SourceSystem    string    `gorm:"column:source_system" json:"source_system"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (PlanDimension) TableName() string {
	return "dim_plan"
}

// ServiceDimension is one linked service.
type ServiceDimension struct {
	ServiceKey  int64     `gorm:"column:service_key;primaryKey" json:"service_key"`
	ServiceID   string    `gorm:"column:service_id;uniqueIndex" json:"service_id"`
	ServiceName string    `gorm:"column:service_name" json:"service_name"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (ServiceDimension) TableName() string {
	return "dim_service"
}

// PlanCostFact is one accumulating cost measurement per plan load.
type PlanCostFact struct {
	FactKey     int64     `gorm:"column:fact_key;primaryKey" json:"fact_key"`
	PlanKey     int64     `gorm:"column:plan_key" json:"plan_key"`
	OrgKey      int64     `gorm:"column:org_key" json:"org_key"`
	PlanTypeKey int64     `gorm:"column:plan_type_key" json:"plan_type_key"`
	DateKey     int       `gorm:"column:date_key" json:"date_key"`
	Deductible  float64   `gorm:"column:deductible" json:"deductible"`
	Copay       float64   `gorm:"column:copay" json:"copay"`
	TotalCost   float64   `gorm:"column:total_cost" json:"total_cost"`
	LoadID      string    `gorm:"column:load_id" json:"load_id"`
	LoadedAt    time.Time `gorm:"column:loaded_at" json:"loaded_at"`
}

func (PlanCostFact) TableName() string {
	return "fact_plan_costs"
}

// ServiceCostFact is one cost measurement for a linked service per plan load.
type ServiceCostFact struct {
	FactKey    int64     `gorm:"column:fact_key;primaryKey" json:"fact_key"`
	PlanKey    int64     `gorm:"column:plan_key" json:"plan_key"`
	ServiceKey int64     `gorm:"column:service_key" json:"service_key"`
	OrgKey     int64     `gorm:"column:org_key" json:"org_key"`
	DateKey    int       `gorm:"column:date_key" json:"date_key"`
	Deductible float64   `gorm:"column:deductible" json:"deductible"`
	Copay      float64   `gorm:"column:copay" json:"copay"`
	TotalCost  float64   `gorm:"column:total_cost" json:"total_cost"`
	LoadID     string    `gorm:"column:load_id" json:"load_id"`
	LoadedAt   time.Time `gorm:"column:loaded_at" json:"loaded_at"`
}

func (ServiceCostFact) TableName() string {
	return "fact_service_costs"
}

// PlanAttributes carries the descriptive fields of a plan before resolution
// assigns its surrogate key.
type PlanAttributes struct {
	PlanID          string
	PlanName        string
	OrgKey          int64
	PlanTypeKey     int64
	CreationDateKey int
	SourceSystem    string
}

// NormalizePlanTypeName lowercases a raw plan type into its natural key.
func NormalizePlanTypeName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// PlanTypeDisplayName renders a readable name from the raw type, splitting
// camel case and underscores: "inNetwork" and "in_network" both become
// "In Network".
func PlanTypeDisplayName(raw string) string {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "_", " "))
	if raw == "" {
		return ""
	}

	var b strings.Builder
	runes := []rune(raw)
	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' && runes[i-1] >= 'a' && runes[i-1] <= 'z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	words := strings.Fields(b.String())
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}
	return strings.Join(words, " ")
}

// ServiceNaturalKey returns the dimension key for a linked service, the
// source objectId when present, otherwise the slugged service name. Empty
// when the service carries neither.
func ServiceNaturalKey(serviceID, serviceName string) string {
	if id := strings.TrimSpace(serviceID); id != "" {
		return id
	}
	if name := strings.TrimSpace(serviceName); name != "" {
		return slug.Make(name)
	}
	return ""
}
