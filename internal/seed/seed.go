package seed

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	sourcedomain "github.com/carebase/planmart/internal/source/domain"
	sourcerepo "github.com/carebase/planmart/internal/source/repository"
)

type demoPlan struct {
	objectID string
	payload  string
}

var demoPlans = []demoPlan{
	{
		objectID: "demo-plan-1000",
		payload: `{
			"objectId": "demo-plan-1000",
			"objectType": "plan",
			"_org": "demo.carebase.com",
			"planType": "inNetwork",
			"name": "Demo In-Network Plan",
			"creationDate": "2024-01-15",
			"planCostShares": {
				"objectId": "demo-costshare-1000",
				"objectType": "membercostshare",
				"_org": "demo.carebase.com",
				"deductible": 2000,
				"copay": 23
			},
			"linkedPlanServices": [
				{
					"objectId": "demo-planservice-1001",
					"objectType": "planservice",
					"_org": "demo.carebase.com",
					"linkedService": {
						"objectId": "demo-service-1001",
						"objectType": "service",
						"_org": "demo.carebase.com",
						"name": "Yearly physical"
					},
					"planserviceCostShares": {
						"objectId": "demo-costshare-1001",
						"objectType": "membercostshare",
						"_org": "demo.carebase.com",
						"deductible": 10,
						"copay": 0
					}
				},
				{
					"objectId": "demo-planservice-1002",
					"objectType": "planservice",
					"_org": "demo.carebase.com",
					"linkedService": {
						"objectId": "demo-service-1002",
						"objectType": "service",
						"_org": "demo.carebase.com",
						"name": "Well baby check up"
					},
					"planserviceCostShares": {
						"objectId": "demo-costshare-1002",
						"objectType": "membercostshare",
						"_org": "demo.carebase.com",
						"deductible": 10,
						"copay": 175
					}
				}
			]
		}`,
	},
	{
		objectID: "demo-plan-2000",
		payload: `{
			"objectId": "demo-plan-2000",
			"objectType": "plan",
			"_org": "demo.carebase.com",
			"planType": "outOfNetwork",
			"name": "Demo Out-of-Network Plan",
			"creationDate": "2024-03-02",
			"planCostShares": {
				"objectId": "demo-costshare-2000",
				"objectType": "membercostshare",
				"_org": "demo.carebase.com",
				"deductible": 3500,
				"copay": 50
			},
			"linkedPlanServices": [
				{
					"objectId": "demo-planservice-2001",
					"objectType": "planservice",
					"_org": "demo.carebase.com",
					"linkedService": {
						"objectId": "demo-service-2001",
						"objectType": "service",
						"_org": "demo.carebase.com",
						"name": "Urgent care visit"
					},
					"planserviceCostShares": {
						"objectId": "demo-costshare-2001",
						"objectType": "membercostshare",
						"_org": "demo.carebase.com",
						"deductible": 100,
						"copay": 60
					}
				}
			]
		}`,
	},
}

// EnsureDemoPlans seeds a small set of plan documents so a fresh install has
// something to load. It only ever touches an empty source table.
func EnsureDemoPlans(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	repo := sourcerepo.Provide()

	total, err := repo.CountAll(ctx, db)
	if err != nil {
		return err
	}
	if total > 0 {
		return nil
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, plan := range demoPlans {
			doc := sourcedomain.PlanDocument{
				ObjectID: plan.objectID,
				Payload:  datatypes.JSON(plan.payload),
			}
			if err := repo.Upsert(ctx, tx, doc); err != nil {
				return err
			}
		}
		return nil
	})
}
