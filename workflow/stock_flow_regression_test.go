package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/mmtelinfra/sitestock_backend/config"
	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/mmtelinfra/sitestock_backend/utils"
	"github.com/mmtelinfra/sitestock_backend/workflow"
	"github.com/shopspring/decimal"
)

// End-to-end regression over the ledger workflows against real MySQL + Redis.
// Covers: idempotent reconciliation, monotone correction, cross-context
// independence, allocate/return arithmetic, all-or-nothing approval and
// request generation versioning.
func TestStockFlowRegression(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "sitestock_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := utils.SetUserNameInContext(context.Background(), "Tester")
	logger := config.GetLogger()
	db := config.GetDB()
	if db == nil {
		t.Fatal("db is nil after ConnectDatabaseWithRetry")
	}

	dismantle := workflow.ActivityContext{
		ActivityId:   "DSM-100",
		ActivityType: models.ActivityTypeDismantling,
		Phase:        "store-dispatch",
	}
	relocation := workflow.ActivityContext{
		ActivityId:   "RLC-200",
		ActivityType: models.ActivityTypeRelocation,
		Phase:        "installation",
		SubPhase:     "store-operator",
	}

	snapshot := func(qty int64) []workflow.SnapshotMaterial {
		return []workflow.SnapshotMaterial{{
			MaterialCode: "M-2001",
			MaterialName: "Antenna Bracket",
			Qty:          decimal.NewFromInt(qty),
			Unit:         "pcs",
			Condition:    "good",
		}}
	}

	mustTotals := func(step string, total, available, allocated, scrap int64) {
		t.Helper()
		item, err := models.GetStockItemByCode(db, "M-2001")
		if err != nil {
			t.Fatalf("%s: fetch: %v", step, err)
		}
		for _, check := range []struct {
			name string
			got  decimal.Decimal
			want int64
		}{
			{"total", item.TotalQty, total},
			{"available", item.AvailableQty, available},
			{"allocated", item.AllocatedQty, allocated},
			{"scrap", item.QtyScrap, scrap},
		} {
			if !check.got.Equal(decimal.NewFromInt(check.want)) {
				t.Fatalf("%s: %s = %s, want %d", step, check.name, check.got, check.want)
			}
		}
		if err := item.CheckConservation(); err != nil {
			t.Fatalf("%s: conservation: %v", step, err)
		}
	}

	// First contribution.
	batch, err := workflow.ProcessReconcileWorkflow(ctx, logger, dismantle, snapshot(10), "")
	if err != nil || len(batch.Errors) > 0 {
		t.Fatalf("reconcile: err=%v batch=%+v", err, batch)
	}
	mustTotals("first contribution", 10, 10, 0, 0)

	// Replaying the same snapshot must not change anything.
	if _, err := workflow.ProcessReconcileWorkflow(ctx, logger, dismantle, snapshot(10), ""); err != nil {
		t.Fatalf("reconcile replay: %v", err)
	}
	mustTotals("idempotent replay", 10, 10, 0, 0)

	// Downward correction.
	if _, err := workflow.ProcessReconcileWorkflow(ctx, logger, dismantle, snapshot(7), ""); err != nil {
		t.Fatalf("reconcile correction: %v", err)
	}
	mustTotals("correction to 7", 7, 7, 0, 0)

	// Second contributing context is independent.
	if _, err := workflow.ProcessReconcileWorkflow(ctx, logger, relocation, snapshot(5), ""); err != nil {
		t.Fatalf("second context reconcile: %v", err)
	}
	mustTotals("second context adds 5", 12, 12, 0, 0)

	// Clearing the first context removes only its contribution.
	if _, err := workflow.ProcessReconcileWorkflow(ctx, logger, dismantle, nil, ""); err != nil {
		t.Fatalf("clear first context: %v", err)
	}
	mustTotals("first context cleared", 5, 5, 0, 0)

	// Direct allocation.
	allocBatch, err := workflow.ProcessAllocationWorkflow(ctx, logger, "JOB-1", models.ActivityTypeRelocation, []workflow.AllocationMaterial{
		{MaterialCode: "M-2001", Qty: decimal.NewFromInt(3), Condition: "good"},
	})
	if err != nil || len(allocBatch.Errors) > 0 {
		t.Fatalf("allocate: err=%v batch=%+v", err, allocBatch)
	}
	mustTotals("after allocate 3", 5, 2, 3, 0)

	// Over-allocation is rejected per item and leaves the ledger alone.
	overBatch, err := workflow.ProcessAllocationWorkflow(ctx, logger, "JOB-2", models.ActivityTypeRelocation, []workflow.AllocationMaterial{
		{MaterialCode: "M-2001", Qty: decimal.NewFromInt(100)},
	})
	if err != nil {
		t.Fatalf("over-allocate call: %v", err)
	}
	if len(overBatch.Errors) != 1 {
		t.Fatalf("over-allocate must fail per item: %+v", overBatch)
	}
	mustTotals("after rejected over-allocate", 5, 2, 3, 0)

	// Partial return in good shape, remainder as scrap.
	returnBatch, err := workflow.ProcessReturnWorkflow(ctx, logger, "JOB-1", models.ActivityTypeRelocation, []workflow.ReturnMaterial{
		{MaterialCode: "M-2001", Qty: decimal.NewFromInt(2), Condition: "good"},
		{MaterialCode: "M-2001", Qty: decimal.NewFromInt(1), Condition: "scrap"},
	})
	if err != nil || len(returnBatch.Errors) > 0 {
		t.Fatalf("return: err=%v batch=%+v", err, returnBatch)
	}
	mustTotals("after returns", 5, 4, 0, 1)

	// Each return event keeps its own condition; the allocation entry's
	// return_condition only carries the latest one.
	var returnEvents []models.ReturnEntry
	if err := db.Where("activity_id = ?", "JOB-1").Order("id").Find(&returnEvents).Error; err != nil {
		t.Fatalf("load return events: %v", err)
	}
	if len(returnEvents) != 2 ||
		returnEvents[0].Condition != models.ConditionGood || !returnEvents[0].Qty.Equal(decimal.NewFromInt(2)) ||
		returnEvents[1].Condition != models.ConditionScrap || !returnEvents[1].Qty.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("return events must record per-return conditions: %+v", returnEvents)
	}

	// Returning more than allocated is rejected.
	badReturn, err := workflow.ProcessReturnWorkflow(ctx, logger, "JOB-1", models.ActivityTypeRelocation, []workflow.ReturnMaterial{
		{MaterialCode: "M-2001", Qty: decimal.NewFromInt(1), Condition: "good"},
	})
	if err != nil {
		t.Fatalf("over-return call: %v", err)
	}
	if len(badReturn.Errors) != 1 {
		t.Fatalf("over-return must fail: %+v", badReturn)
	}

	violations, err := workflow.VerifyLedgerConsistency(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("ledger must be clean: %+v", violations)
	}

	testGatedRequests(ctx, t)
	testProcurementIntake(ctx, t)
	testSoftDeleteLifecycle(ctx, t)
}

func testSoftDeleteLifecycle(ctx context.Context, t *testing.T) {
	t.Helper()
	logger := config.GetLogger()
	db := config.GetDB()
	actor := utils.ActorFromContext(ctx)

	// An item still holding stock cannot be deleted.
	err := models.SoftDeleteStockItem(db, "M-2001", actor)
	var se *utils.StateError
	if !errors.As(err, &se) {
		t.Fatalf("delete of stocked item must be refused with a state error, got %v", err)
	}

	// Bring a fresh item up, empty it out again, then delete it.
	scratch := workflow.ActivityContext{
		ActivityId:   "DSM-500",
		ActivityType: models.ActivityTypeDismantling,
		Phase:        "store-dispatch",
	}
	mat := func(qty int64) []workflow.SnapshotMaterial {
		return []workflow.SnapshotMaterial{{MaterialCode: "M-4001", Qty: decimal.NewFromInt(qty), Condition: "good"}}
	}
	if _, err := workflow.ProcessReconcileWorkflow(ctx, logger, scratch, mat(2), ""); err != nil {
		t.Fatalf("scratch contribution: %v", err)
	}
	if err := models.SoftDeleteStockItem(db, "M-4001", actor); !errors.As(err, &se) {
		t.Fatalf("delete with live contribution entries must be refused, got %v", err)
	}
	if _, err := workflow.ProcessReconcileWorkflow(ctx, logger, scratch, nil, ""); err != nil {
		t.Fatalf("clear scratch contribution: %v", err)
	}
	if err := models.SoftDeleteStockItem(db, "M-4001", actor); err != nil {
		t.Fatalf("delete of empty item: %v", err)
	}

	// The code must stay usable: a later contribution revives the
	// soft-deleted row instead of colliding with its unique index slot.
	batch, err := workflow.ProcessReconcileWorkflow(ctx, logger, scratch, mat(3), "")
	if err != nil || len(batch.Errors) > 0 {
		t.Fatalf("contribution after delete: err=%v batch=%+v", err, batch)
	}
	item, err := models.GetStockItemByCode(db, "M-4001")
	if err != nil {
		t.Fatalf("fetch revived item: %v", err)
	}
	if !item.TotalQty.Equal(decimal.NewFromInt(3)) || !item.AvailableQty.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("revived item totals: total=%s available=%s", item.TotalQty, item.AvailableQty)
	}
}

func testGatedRequests(ctx context.Context, t *testing.T) {
	t.Helper()
	logger := config.GetLogger()
	db := config.GetDB()

	gated := workflow.ActivityContext{
		ActivityId:   "COW-300",
		ActivityType: models.ActivityTypeCow,
		Phase:        "deployment",
		SubPhase:     "civil-works",
	}
	mat := func(qty int64) []workflow.SnapshotMaterial {
		return []workflow.SnapshotMaterial{{
			MaterialCode: "M-2001",
			Qty:          decimal.NewFromInt(qty),
			Condition:    "good",
		}}
	}

	request, mode, err := workflow.UpsertAllocationRequest(ctx, logger, gated, mat(2))
	if err != nil || mode != workflow.RequestModeCreated {
		t.Fatalf("create request: mode=%s err=%v", mode, err)
	}

	// Editing while pending rewrites in place.
	updated, mode, err := workflow.UpsertAllocationRequest(ctx, logger, gated, mat(3))
	if err != nil || mode != workflow.RequestModeUpdated {
		t.Fatalf("update request: mode=%s err=%v", mode, err)
	}
	if updated.RequestId != request.RequestId {
		t.Fatalf("pending update must keep the request id: %s vs %s", updated.RequestId, request.RequestId)
	}

	// Approval of an unfillable snapshot must leave ledger and request alone.
	bigger, _, err := workflow.UpsertAllocationRequest(ctx, logger, workflow.ActivityContext{
		ActivityId:   "COW-301",
		ActivityType: models.ActivityTypeCow,
		Phase:        "deployment",
		SubPhase:     "telecom-works",
	}, mat(100))
	if err != nil {
		t.Fatalf("create unfillable request: %v", err)
	}
	failedReq, failedBatch, err := workflow.ApproveAllocationRequest(ctx, logger, bigger.RequestId)
	if err != nil {
		t.Fatalf("approve unfillable: %v", err)
	}
	if failedBatch == nil || len(failedBatch.Errors) == 0 {
		t.Fatalf("unfillable approval must report item errors: %+v", failedBatch)
	}
	if failedReq.Status != models.RequestStatusPending {
		t.Fatalf("failed approval must keep the request pending: %s", failedReq.Status)
	}
	item, err := models.GetStockItemByCode(db, "M-2001")
	if err != nil {
		t.Fatalf("fetch after failed approval: %v", err)
	}
	if !item.AllocatedQty.IsZero() {
		t.Fatalf("failed approval must not allocate: %s", item.AllocatedQty)
	}

	// Successful approval moves stock and hands materials to the activity.
	approved, batch, err := workflow.ApproveAllocationRequest(ctx, logger, updated.RequestId)
	if err != nil || len(batch.Errors) > 0 {
		t.Fatalf("approve: err=%v batch=%+v", err, batch)
	}
	if approved.Status != models.RequestStatusApproved {
		t.Fatalf("status after approve: %s", approved.Status)
	}
	var logCount int64
	if err := db.Model(&models.ActivityMaterialLog{}).Where("activity_id = ?", gated.ActivityId).Count(&logCount).Error; err != nil || logCount != 1 {
		t.Fatalf("activity material log rows: %d err=%v", logCount, err)
	}

	// A resolved request is immutable; re-approval must fail.
	if _, _, err := workflow.ApproveAllocationRequest(ctx, logger, updated.RequestId); err == nil {
		t.Fatal("second approval must be rejected")
	}

	// Resolving and re-submitting opens a new generation.
	if _, err := workflow.RejectAllocationRequest(ctx, logger, bigger.RequestId, "restock first"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	second, mode, err := workflow.UpsertAllocationRequest(ctx, logger, workflow.ActivityContext{
		ActivityId:   "COW-301",
		ActivityType: models.ActivityTypeCow,
		Phase:        "deployment",
		SubPhase:     "telecom-works",
	}, mat(1))
	if err != nil || mode != workflow.RequestModeCreated {
		t.Fatalf("resubmit: mode=%s err=%v", mode, err)
	}
	if second.Generation != 2 || !strings.HasSuffix(second.RequestKey(), "_v2") {
		t.Fatalf("resubmit must open generation 2: gen=%d key=%s", second.Generation, second.RequestKey())
	}

	// Cancellation resolves a pending request without touching the ledger.
	cancelled, err := workflow.CancelAllocationRequest(ctx, logger, second.RequestId)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.RequestStatusCancelled {
		t.Fatalf("status after cancel: %s", cancelled.Status)
	}

	// Cancelled is terminal, same as approved or rejected.
	var se *utils.StateError
	if _, err := workflow.CancelAllocationRequest(ctx, logger, second.RequestId); !errors.As(err, &se) {
		t.Fatalf("second cancel must fail with a state error, got %v", err)
	}
	if _, _, err := workflow.ApproveAllocationRequest(ctx, logger, second.RequestId); !errors.As(err, &se) {
		t.Fatalf("approving a cancelled request must fail with a state error, got %v", err)
	}

	// A cancelled context can come back with a fresh generation.
	third, mode, err := workflow.UpsertAllocationRequest(ctx, logger, workflow.ActivityContext{
		ActivityId:   "COW-301",
		ActivityType: models.ActivityTypeCow,
		Phase:        "deployment",
		SubPhase:     "telecom-works",
	}, mat(1))
	if err != nil || mode != workflow.RequestModeCreated {
		t.Fatalf("resubmit after cancel: mode=%s err=%v", mode, err)
	}
	if third.Generation != 3 {
		t.Fatalf("resubmit after cancel must open generation 3: gen=%d", third.Generation)
	}
}

func testProcurementIntake(ctx context.Context, t *testing.T) {
	t.Helper()
	logger := config.GetLogger()
	db := config.GetDB()

	// Custom source requires provenance.
	if _, err := workflow.ProcessProcurementIntake(ctx, logger, []workflow.ProcurementMaterial{
		{MaterialCode: "M-3001", Qty: decimal.NewFromInt(5)},
	}, models.ProcurementSourceCustom, "", nil); err == nil {
		t.Fatal("custom source without store name must be rejected")
	}

	result, err := workflow.ProcessProcurementIntake(ctx, logger, []workflow.ProcurementMaterial{
		{MaterialCode: "M-3001", MaterialName: "Feeder Cable", Qty: decimal.NewFromInt(5), Unit: "meters", Condition: "excellent"},
	}, models.ProcurementSourceCustom, "City Hardware", []string{"RCPT-77"})
	if err != nil || len(result.Errors) > 0 {
		t.Fatalf("intake: err=%v result=%+v", err, result)
	}

	item, err := models.GetStockItemByCode(db, "M-3001")
	if err != nil {
		t.Fatalf("fetch intake item: %v", err)
	}
	if !item.TotalQty.Equal(decimal.NewFromInt(5)) || !item.QtyExcellent.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("intake totals: total=%s excellent=%s", item.TotalQty, item.QtyExcellent)
	}

	// Intake leaves no contribution entry; it is invisible to reconciliation.
	var contribCount int64
	if err := db.Model(&models.ContributionEntry{}).Where("stock_item_id = ?", item.ID).Count(&contribCount).Error; err != nil || contribCount != 0 {
		t.Fatalf("intake must not write contribution entries: count=%d err=%v", contribCount, err)
	}
	var record models.ProcurementRecord
	if err := db.Preload("Receipts").Where("stock_item_id = ?", item.ID).First(&record).Error; err != nil {
		t.Fatalf("fetch procurement record: %v", err)
	}
	if record.StoreName != "City Hardware" || len(record.Receipts) != 1 {
		t.Fatalf("provenance: %+v", record)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("sitestock-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("sitestock-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=sitestock_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
