package seed

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	sourcedomain "github.com/carebase/planmart/internal/source/domain"
	sourcerepo "github.com/carebase/planmart/internal/source/repository"
)

func openSeedDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&sourcedomain.PlanDocument{}))
	return conn
}

func TestEnsureDemoPlansSeedsEmptyTable(t *testing.T) {
	conn := openSeedDB(t)

	require.NoError(t, EnsureDemoPlans(conn))

	docs, err := sourcerepo.Provide().FetchAll(context.Background(), conn)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	// Every seeded payload must survive the loader's parser.
	for _, doc := range docs {
		plan, err := sourcedomain.ParsePlan(doc.Payload)
		require.NoError(t, err, "payload %s", doc.ObjectID)
		assert.Equal(t, doc.ObjectID, plan.ObjectID)
		assert.Equal(t, "demo.carebase.com", plan.OrgID)
		assert.NotEmpty(t, plan.PlanType)
		assert.NotEmpty(t, plan.CreationDate)
	}
}

func TestEnsureDemoPlansIsIdempotent(t *testing.T) {
	conn := openSeedDB(t)

	require.NoError(t, EnsureDemoPlans(conn))
	require.NoError(t, EnsureDemoPlans(conn))

	count, err := sourcerepo.Provide().CountAll(context.Background(), conn)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestEnsureDemoPlansSkipsPopulatedTable(t *testing.T) {
	conn := openSeedDB(t)

	existing := sourcedomain.PlanDocument{
		ObjectID: "tenant-plan-1",
		Payload:  []byte(`{"objectId": "tenant-plan-1", "objectType": "plan"}`),
	}
	require.NoError(t, sourcerepo.Provide().Upsert(context.Background(), conn, existing))

	require.NoError(t, EnsureDemoPlans(conn))

	count, err := sourcerepo.Provide().CountAll(context.Background(), conn)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
