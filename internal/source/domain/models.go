package domain

import (
	"time"

	"gorm.io/datatypes"
)

// PlanDocument is one raw row in the source store. The payload column holds
// the plan JSON exactly as the authoring system wrote it.
type PlanDocument struct {
	ID        int64          `gorm:"column:id;primaryKey" json:"id"`
	ObjectID  string         `gorm:"column:object_id;uniqueIndex" json:"object_id"`
	Payload   datatypes.JSON `gorm:"column:payload" json:"payload"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (PlanDocument) TableName() string {
	return "plan_documents"
}

// Plan is the parsed, lenient view of a plan document. Identity fields are
// kept as found, the loader decides which absences are fatal for the
// document.
type Plan struct {
	ObjectID     string
	ObjectType   string
	OrgID        string
	PlanType     string
	PlanName     string
	CreationDate string
	CostShares   CostShares
	Services     []PlanService
}

// CostShares carries the cost fields of a plan or linked service. Missing
// values parse to zero; how malformed values are treated depends on the
// level, see ParsePlan.
type CostShares struct {
	Deductible float64
	Copay      float64
}

// PlanService is one linked service entry under a plan.
type PlanService struct {
	LinkedObjectID string
	ServiceID      string
	ServiceName    string
	CostShares     CostShares
}
