package models_test

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/dlvery/dlvery_backend/config"
	"github.com/dlvery/dlvery_backend/models"
	"github.com/dlvery/dlvery_backend/utils"
	"github.com/shopspring/decimal"
)

func TestInventoryAndDeliveryLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "dlvery_test")
	t.Setenv("TOKEN_HOUR_LIFESPAN", "1")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test Operator")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	// SKU allocation is sequential per category.
	laptop, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:      "Laptop",
		Category:  models.CategoryElectronics,
		Quantity:  5,
		UnitPrice: decimal.NewFromFloat(999.99),
	})
	if err != nil {
		t.Fatalf("CreateProduct(laptop): %v", err)
	}
	if laptop.Sku != "ELEC-0001" {
		t.Fatalf("laptop sku = %q, want ELEC-0001", laptop.Sku)
	}
	monitor, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:      "Monitor",
		Category:  models.CategoryElectronics,
		Quantity:  3,
		UnitPrice: decimal.NewFromFloat(249.50),
	})
	if err != nil {
		t.Fatalf("CreateProduct(monitor): %v", err)
	}
	if monitor.Sku != "ELEC-0002" {
		t.Fatalf("monitor sku = %q, want ELEC-0002", monitor.Sku)
	}

	milk, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:      "Milk",
		Category:  models.CategoryFoodBeverages,
		Quantity:  10,
		UnitPrice: decimal.NewFromFloat(2.50),
	})
	if err != nil {
		t.Fatalf("CreateProduct(milk): %v", err)
	}
	if milk.Sku != "FOOD-0001" {
		t.Fatalf("milk sku = %q, want FOOD-0001", milk.Sku)
	}
	if milk.Quantity != 10 {
		t.Fatalf("milk quantity = %d, want 10 (initial IN movement)", milk.Quantity)
	}
	assertMovementSum(t, ctx, milk.Sku)

	// Manual movements keep the ledger and quantity in lockstep.
	milk, err = models.RecordMovementBySku(ctx, "FOOD-0001", &models.NewMovement{
		MovementType: models.MovementIn,
		Quantity:     5,
		Reason:       "Restock",
	})
	if err != nil {
		t.Fatalf("RecordMovementBySku(IN): %v", err)
	}
	milk, err = models.RecordMovementBySku(ctx, "FOOD-0001", &models.NewMovement{
		MovementType: models.MovementOut,
		Quantity:     3,
		Reason:       "Spoilage",
	})
	if err != nil {
		t.Fatalf("RecordMovementBySku(OUT): %v", err)
	}
	if milk.Quantity != 12 {
		t.Fatalf("milk quantity = %d, want 12 after 10+5-3", milk.Quantity)
	}
	assertMovementSum(t, ctx, milk.Sku)

	// The ledger invariant holds across arbitrary movement sequences.
	seed := time.Now().UnixNano()
	rng := rand.New(rand.NewSource(seed))
	t.Logf("movement sequence seed: %d", seed)
	beans, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:      "Beans",
		Category:  models.CategoryFoodBeverages,
		Quantity:  50,
		UnitPrice: decimal.NewFromFloat(1.25),
	})
	if err != nil {
		t.Fatalf("CreateProduct(beans): %v", err)
	}
	for i := 0; i < 25; i++ {
		movementType := models.MovementIn
		if rng.Intn(2) == 0 {
			movementType = models.MovementOut
		}
		_, err := models.RecordMovementBySku(ctx, beans.Sku, &models.NewMovement{
			MovementType: movementType,
			Quantity:     rng.Intn(9) + 1,
			Reason:       "Cycle count",
		})
		if err != nil {
			t.Fatalf("random movement %d (seed %d): %v", i, seed, err)
		}
	}
	assertMovementSum(t, ctx, beans.Sku)

	// Requesting more than available rolls everything back.
	_, err = models.CreateDelivery(ctx, &models.NewDelivery{
		DeliveryAgent: "agent1",
		Items: []models.NewDeliveryItem{
			{ProductSku: "ELEC-0001", Quantity: 1},
			{ProductSku: "FOOD-0001", Quantity: 100},
		},
	})
	if utils.KindOf(err) != utils.KindInsufficientStock {
		t.Fatalf("expected InsufficientStock, got %v", err)
	}
	var deliveryCount int64
	if err := db.WithContext(ctx).Model(&models.Delivery{}).Count(&deliveryCount).Error; err != nil {
		t.Fatalf("count deliveries: %v", err)
	}
	if deliveryCount != 0 {
		t.Fatalf("failed delivery left %d rows behind", deliveryCount)
	}
	fresh, err := models.GetProductBySku(ctx, "ELEC-0001")
	if err != nil {
		t.Fatalf("GetProductBySku: %v", err)
	}
	if fresh.Quantity != 5 {
		t.Fatalf("laptop quantity = %d after rollback, want 5", fresh.Quantity)
	}
	assertMovementSum(t, ctx, "ELEC-0001")

	// A valid delivery reserves stock and derives priority from the items.
	delivery, err := models.CreateDelivery(ctx, &models.NewDelivery{
		DeliveryAgent: "agent1",
		Items: []models.NewDeliveryItem{
			{ProductSku: "FOOD-0001", Quantity: 2},
		},
		CustomerName:    "Asha",
		CustomerAddress: "14 MG Road",
	})
	if err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}
	if !regexp.MustCompile(`^DLV-[0-9A-F]{8}$`).MatchString(delivery.DeliveryId) {
		t.Fatalf("delivery id = %q", delivery.DeliveryId)
	}
	if delivery.Priority != models.PriorityEssential {
		t.Fatalf("priority = %s, want ESSENTIAL for food", delivery.Priority)
	}
	if delivery.Status != models.StatusPending {
		t.Fatalf("status = %s, want PENDING", delivery.Status)
	}
	milk, err = models.GetProductBySku(ctx, "FOOD-0001")
	if err != nil {
		t.Fatalf("GetProductBySku: %v", err)
	}
	if milk.Quantity != 10 {
		t.Fatalf("milk quantity = %d after reserving 2 of 12, want 10", milk.Quantity)
	}
	assertMovementSum(t, ctx, "FOOD-0001")

	// Items repeating a SKU are checked against their combined quantity.
	_, err = models.CreateDelivery(ctx, &models.NewDelivery{
		DeliveryAgent: "agent1",
		Items: []models.NewDeliveryItem{
			{ProductSku: "FOOD-0001", Quantity: 6},
			{ProductSku: "FOOD-0001", Quantity: 6},
		},
	})
	if utils.KindOf(err) != utils.KindInsufficientStock {
		t.Fatalf("duplicate-sku overdraw: expected InsufficientStock, got %v", err)
	}
	milk, err = models.GetProductBySku(ctx, "FOOD-0001")
	if err != nil {
		t.Fatalf("GetProductBySku: %v", err)
	}
	if milk.Quantity != 10 {
		t.Fatalf("milk quantity = %d after rejected duplicate-sku delivery, want 10", milk.Quantity)
	}
	assertMovementSum(t, ctx, "FOOD-0001")

	// Within stock, duplicates keep their own item rows and decrement once each.
	dup, err := models.CreateDelivery(ctx, &models.NewDelivery{
		DeliveryAgent: "agent1",
		Items: []models.NewDeliveryItem{
			{ProductSku: "FOOD-0001", Quantity: 2},
			{ProductSku: "FOOD-0001", Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("CreateDelivery(duplicate sku): %v", err)
	}
	if len(dup.Items) != 2 {
		t.Fatalf("duplicate-sku delivery has %d items, want 2", len(dup.Items))
	}
	milk, err = models.GetProductBySku(ctx, "FOOD-0001")
	if err != nil {
		t.Fatalf("GetProductBySku: %v", err)
	}
	if milk.Quantity != 5 {
		t.Fatalf("milk quantity = %d after reserving 2+3 of 10, want 5", milk.Quantity)
	}
	assertMovementSum(t, ctx, "FOOD-0001")

	// Walk the happy path through the state machine.
	delivery, err = models.UpdateDeliveryStatus(ctx, delivery.ID, &models.StatusUpdate{Status: models.StatusAssigned})
	if err != nil {
		t.Fatalf("to ASSIGNED: %v", err)
	}
	if delivery.AssignedAt == nil {
		t.Fatal("assignedAt not stamped")
	}
	firstAssigned := *delivery.AssignedAt

	delivery, err = models.UpdateDeliveryByAgent(ctx, delivery.ID, "agent1", &models.StatusUpdate{Status: models.StatusInTransit})
	if err != nil {
		t.Fatalf("to IN_TRANSIT: %v", err)
	}
	delivery, err = models.UpdateDeliveryByAgent(ctx, delivery.ID, "agent1", &models.StatusUpdate{
		Status:          models.StatusDelivered,
		SignatureBase64: "aGVsbG8=",
	})
	if err != nil {
		t.Fatalf("to DELIVERED: %v", err)
	}
	if delivery.DeliveredAt == nil {
		t.Fatal("deliveredAt not stamped")
	}
	if string(delivery.CustomerSignature) != "hello" {
		t.Fatalf("signature = %q", delivery.CustomerSignature)
	}
	// Compare with tolerance; the DATETIME column rounds sub-second parts.
	if drift := delivery.AssignedAt.Sub(firstAssigned); drift > time.Second || drift < -time.Second {
		t.Fatalf("assignedAt moved from %v to %v", firstAssigned, delivery.AssignedAt)
	}

	// DELIVERED is terminal for both paths.
	_, err = models.UpdateDeliveryStatus(ctx, delivery.ID, &models.StatusUpdate{Status: models.StatusReturned})
	if utils.KindOf(err) != utils.KindInvalidStatus {
		t.Fatalf("operator on delivered: expected InvalidStatus, got %v", err)
	}
	_, err = models.UpdateDeliveryByAgent(ctx, delivery.ID, "agent1", &models.StatusUpdate{Status: models.StatusInTransit})
	if utils.KindOf(err) != utils.KindInvalidStatus {
		t.Fatalf("agent on delivered: expected InvalidStatus, got %v", err)
	}

	// An unrelated agent cannot see the delivery at all.
	_, err = models.GetDeliveryByIdAndAgent(ctx, delivery.ID, "someone-else")
	if utils.KindOf(err) != utils.KindNotFound {
		t.Fatalf("foreign agent: expected NotFound, got %v", err)
	}

	// Backfill rewrites rows keyed by a login id once the account exists,
	// and leaves everything else alone.
	legacy, err := models.CreateDelivery(ctx, &models.NewDelivery{
		DeliveryAgent: "ravi.kumar",
		Items: []models.NewDeliveryItem{
			{ProductSku: "FOOD-0001", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("CreateDelivery(legacy agent): %v", err)
	}
	if legacy.DeliveryAgent != "ravi.kumar" {
		t.Fatalf("agent without account resolved to %q", legacy.DeliveryAgent)
	}
	if err := db.WithContext(ctx).Create(&models.User{
		Username:      "ravi.kumar",
		Email:         "ravi.kumar@dlvery.com",
		FullName:      "Ravi Kumar",
		Role:          models.RoleDeliveryTeam,
		OauthProvider: models.ProviderGoogle,
		IsActive:      utils.NewTrue(),
		EmailVerified: utils.NewTrue(),
	}).Error; err != nil {
		t.Fatalf("create agent user: %v", err)
	}
	updated, err := models.BackfillAgentDisplayNames(ctx)
	if err != nil {
		t.Fatalf("BackfillAgentDisplayNames: %v", err)
	}
	if updated != 1 {
		t.Fatalf("backfill updated %d rows, want 1", updated)
	}
	legacy, err = models.GetDeliveryById(ctx, legacy.ID)
	if err != nil {
		t.Fatalf("GetDeliveryById: %v", err)
	}
	if legacy.DeliveryAgent != "Ravi Kumar" {
		t.Fatalf("backfilled agent = %q, want Ravi Kumar", legacy.DeliveryAgent)
	}
	// Idempotent: display names are not usernames, so nothing re-matches.
	updated, err = models.BackfillAgentDisplayNames(ctx)
	if err != nil {
		t.Fatalf("BackfillAgentDisplayNames(second run): %v", err)
	}
	if updated != 0 {
		t.Fatalf("second backfill updated %d rows, want 0", updated)
	}

	// Referenced products refuse deletion.
	_, err = models.DeleteProduct(ctx, milk.ID)
	if utils.KindOf(err) != utils.KindConflict {
		t.Fatalf("delete referenced product: expected Conflict, got %v", err)
	}
	if _, err := models.DeleteProduct(ctx, monitor.ID); err != nil {
		t.Fatalf("delete unreferenced product: %v", err)
	}
	if _, err := models.GetProductBySku(ctx, "ELEC-0002"); utils.KindOf(err) != utils.KindNotFound {
		t.Fatal("deleted product should be gone")
	}
}

// assertMovementSum checks the ledger invariant: the signed movement sum
// equals the current product quantity.
func assertMovementSum(t *testing.T, ctx context.Context, sku string) {
	t.Helper()
	product, err := models.GetProductBySku(ctx, sku)
	if err != nil {
		t.Fatalf("GetProductBySku(%s): %v", sku, err)
	}
	movements, err := models.GetMovementHistory(ctx, sku)
	if err != nil {
		t.Fatalf("GetMovementHistory(%s): %v", sku, err)
	}
	sum := 0
	for _, m := range movements {
		sum += m.MovementType.QuantityDelta(m.Quantity)
	}
	if sum != product.Quantity {
		t.Fatalf("%s: movement sum %d != quantity %d", sku, sum, product.Quantity)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("dlvery-test-redis-%d", time.Now().UnixNano())
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
	name := fmt.Sprintf("dlvery-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=dlvery_test",
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
	// Example: "127.0.0.1:49154\n"
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
