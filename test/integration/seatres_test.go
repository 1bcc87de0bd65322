package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/openticket/seat-reservations/internal/adapters/crdb"
	mongoadapter "github.com/openticket/seat-reservations/internal/adapters/mongo"
	"github.com/openticket/seat-reservations/internal/adapters/rabbit"
	redisadapter "github.com/openticket/seat-reservations/internal/adapters/redis"
	"github.com/openticket/seat-reservations/internal/booking"
	"github.com/openticket/seat-reservations/internal/config"
	httphandler "github.com/openticket/seat-reservations/internal/http"
	"github.com/openticket/seat-reservations/internal/idempotency"
	"github.com/openticket/seat-reservations/internal/observability"
	"github.com/openticket/seat-reservations/internal/outbox"
	"github.com/openticket/seat-reservations/internal/rateLimit"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestIntegration_HoldReserveFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer crdbContainer.Terminate(ctx)

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForExec([]string{"mongo", "--eval", "db.runCommand('ping').ok"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer mongoContainer.Terminate(ctx)

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	rabbitContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-management",
			ExposedPorts: []string{"5672/tcp", "15672/tcp"},
			WaitingFor:   wait.ForHTTP("/api/health").WithPort("15672"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitContainer.Terminate(ctx)

	crdbHost, err := crdbContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	crdbPort, err := crdbContainer.MappedPort(ctx, "26257")
	if err != nil {
		t.Fatal(err)
	}
	mongoHost, err := mongoContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mongoPort, err := mongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		t.Fatal(err)
	}
	redisHost, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatal(err)
	}
	rabbitHost, err := rabbitContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rabbitPort, err := rabbitContainer.MappedPort(ctx, "5672")
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		CRDBDSN:                 "postgresql://root@" + crdbHost + ":" + crdbPort.Port() + "/defaultdb?sslmode=disable",
		MongoURI:                "mongodb://" + mongoHost + ":" + mongoPort.Port(),
		RedisAddr:               redisHost + ":" + redisPort.Port(),
		RabbitURL:               "amqp://guest:guest@" + rabbitHost + ":" + rabbitPort.Port() + "/",
		MaxHoldSeconds:          60,
		MaxHoldsPerUserPerEvent: 3,
		OTLPEndpoint:            "", // Skip otel for test
	}

	// Setup dependencies
	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		t.Fatal(err)
	}
	defer mongoClient.Disconnect(ctx)
	logger := observability.NewLogger()
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("seatres"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		t.Fatal(err)
	}

	// Bind a consumer before the scenario runs so every published event is
	// captured.
	consumer, err := rabbit.NewConsumer(rabbitConn, "seatres-test", "#")
	if err != nil {
		t.Fatal(err)
	}
	consCtx, consCancel := context.WithCancel(ctx)
	defer consCancel()
	deliveries, err := consumer.Consume(consCtx)
	if err != nil {
		t.Fatal(err)
	}

	svc := booking.NewService(repo, booking.Config{
		MaxHoldSeconds:          cfg.MaxHoldSeconds,
		MaxHoldsPerUserPerEvent: cfg.MaxHoldsPerUserPerEvent,
	}, logger)
	handlers := httphandler.NewHandlers(cfg, svc, redisCache, idemp, audit, logger)
	r := httphandler.SetupRouter(handlers, logger, rl, idemp)

	pub := outbox.NewPublisher(repo, rabbitPub, logger)
	pubCtx, pubCancel := context.WithCancel(ctx)
	defer pubCancel()
	go pub.Run(pubCtx, time.Second)

	srv := httptest.NewServer(r)
	defer srv.Close()

	// Test scenario: two users race for one seat, the loser takes another.
	userA := uuid.New()
	userB := uuid.New()

	// Create event
	eventBody, _ := json.Marshal(map[string]interface{}{
		"name":        "Integration Concert",
		"total_seats": 5,
	})
	req, _ := http.NewRequest("POST", srv.URL+"/v1/events", bytes.NewReader(eventBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create event failed: %v, status: %d", err, resp.StatusCode)
	}
	var eventResp struct {
		ID uuid.UUID `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&eventResp)
	resp.Body.Close()
	eventID := eventResp.ID.String()

	// User A holds seat 1
	holdBody, _ := json.Marshal(map[string]interface{}{
		"user_id": userA.String(),
		"seconds": 60,
	})
	req, _ = http.NewRequest("POST", srv.URL+"/v1/events/"+eventID+"/seats/1/hold", bytes.NewReader(holdBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("hold failed: %v, status: %d", err, resp.StatusCode)
	}
	resp.Body.Close()

	// User B tries the same seat and loses
	holdBody, _ = json.Marshal(map[string]interface{}{
		"user_id": userB.String(),
	})
	req, _ = http.NewRequest("POST", srv.URL+"/v1/events/"+eventID+"/seats/1/hold", bytes.NewReader(holdBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict for second hold, got: %v, status: %d", err, resp.StatusCode)
	}
	resp.Body.Close()

	// User A converts the hold into a reservation
	reserveBody, _ := json.Marshal(map[string]interface{}{
		"user_id": userA.String(),
	})
	req, _ = http.NewRequest("POST", srv.URL+"/v1/events/"+eventID+"/seats/1/reservation", bytes.NewReader(reserveBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("reserve failed: %v, status: %d", err, resp.StatusCode)
	}
	resp.Body.Close()

	// User B reserves seat 2 directly
	reserveBody, _ = json.Marshal(map[string]interface{}{
		"user_id": userB.String(),
	})
	req, _ = http.NewRequest("POST", srv.URL+"/v1/events/"+eventID+"/seats/2/reservation", bytes.NewReader(reserveBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("direct reserve failed: %v, status: %d", err, resp.StatusCode)
	}
	resp.Body.Close()

	// Seat map reflects both reservations
	resp, err = http.Get(srv.URL + "/v1/events/" + eventID + "/seats")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list seats failed: %v, status: %d", err, resp.StatusCode)
	}
	var seats []struct {
		Number int    `json:"number"`
		Status string `json:"status"`
	}
	json.NewDecoder(resp.Body).Decode(&seats)
	resp.Body.Close()
	if len(seats) != 5 {
		t.Fatalf("expected 5 seats, got %d", len(seats))
	}
	if seats[0].Status != "reserved" || seats[1].Status != "reserved" || seats[2].Status != "available" {
		t.Errorf("unexpected seat map: %+v", seats)
	}

	// Reservations list both users in order
	resp, err = http.Get(srv.URL + "/v1/events/" + eventID + "/reservations")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list reservations failed: %v, status: %d", err, resp.StatusCode)
	}
	var reservations []struct {
		UserID     uuid.UUID `json:"user_id"`
		SeatNumber int       `json:"seat_number"`
	}
	json.NewDecoder(resp.Body).Decode(&reservations)
	resp.Body.Close()
	if len(reservations) != 2 {
		t.Fatalf("expected 2 reservations, got %d", len(reservations))
	}
	if reservations[0].UserID != userA || reservations[0].SeatNumber != 1 {
		t.Errorf("unexpected first reservation: %+v", reservations[0])
	}

	// Outbox drains into rabbit within a few publisher ticks
	deadline := time.Now().Add(10 * time.Second)
	for {
		records, err := repo.GetUnpublishedOutbox(ctx, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(records) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("outbox not drained, %d records left", len(records))
		}
		time.Sleep(500 * time.Millisecond)
	}

	// The broker saw the lifecycle events.
	select {
	case d := <-deliveries:
		if len(d.Body) == 0 {
			t.Error("expected a non-empty event payload")
		}
		d.Ack(false)
	case <-time.After(5 * time.Second):
		t.Error("expected at least one event on the exchange")
	}

	// Cancelling the consumer context ends the delivery stream.
	consCancel()
	closeDeadline := time.After(5 * time.Second)
	for open := true; open; {
		select {
		case _, ok := <-deliveries:
			open = ok
		case <-closeDeadline:
			t.Fatal("expected delivery channel to close after cancellation")
		}
	}
}
