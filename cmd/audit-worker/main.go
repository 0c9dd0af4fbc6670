package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/user_agent"
	redislib "github.com/redis/go-redis/v9"

	"github.com/Varun5711/gatekeeper/internal/clickhouse"
	"github.com/Varun5711/gatekeeper/internal/config"
	"github.com/Varun5711/gatekeeper/internal/logger"
	"github.com/Varun5711/gatekeeper/internal/redis"
)

var (
	log           *logger.Logger
	streamName    string
	consumerGroup string
	consumerName  string
	batchSize     int
	pollInterval  time.Duration
	blockTime     time.Duration
)

func main() {
	log = logger.New("audit-worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: %v", err)
	}

	streamName = cfg.Redis.StreamName
	consumerGroup = cfg.Audit.ConsumerGroup
	consumerName = cfg.Audit.ConsumerName
	batchSize = cfg.Audit.BatchSize
	pollInterval = cfg.Audit.PollInterval
	blockTime = cfg.Audit.BlockTime

	ctx := context.Background()

	redisClient, err := redis.NewRedisClient(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	chClient, err := clickhouse.NewClient(clickhouse.Config{
		Addr:     cfg.ClickHouse.Addr,
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
		MaxConns: cfg.ClickHouse.MaxConns,
	})
	if err != nil {
		log.Fatal("Failed to connect to ClickHouse: %v", err)
	}
	defer chClient.Close()

	if err := ensureSchema(ctx, chClient); err != nil {
		log.Fatal("Failed to create audit table: %v", err)
	}

	err = redisClient.GetClient().XGroupCreateMkStream(ctx, streamName, consumerGroup, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		log.Fatal("Failed to create consumer group: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Info("Processing auth events")
	go processEvents(ctx, redisClient.GetClient(), chClient)

	<-sigChan
	log.Info("Shutting down")
}

func ensureSchema(ctx context.Context, client *clickhouse.Client) error {
	return client.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS auth.auth_events (
			event_id    String,
			event_type  LowCardinality(String),
			user_id     String,
			email       String,
			occurred_at DateTime,
			ip_address  String,
			user_agent  String,
			browser     String,
			os          String,
			device_type LowCardinality(String)
		)
		ENGINE = MergeTree()
		ORDER BY (user_id, occurred_at)
	`)
}

func processEvents(ctx context.Context, client *redislib.Client, chClient *clickhouse.Client) {
	for {
		messages, err := client.XReadGroup(ctx, &redislib.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: consumerName,
			Streams:  []string{streamName, ">"},
			Count:    int64(batchSize),
			Block:    blockTime,
		}).Result()

		if err != nil {
			if err == redislib.Nil {
				continue
			}
			log.Error("Failed to read from stream: %v", err)
			time.Sleep(pollInterval)
			continue
		}

		for _, stream := range messages {
			if len(stream.Messages) == 0 {
				continue
			}

			rows := make([]clickhouse.AuthEvent, 0, len(stream.Messages))
			messageIDs := make([]string, 0, len(stream.Messages))

			for _, msg := range stream.Messages {
				row, ok := toAuthEvent(msg)
				if !ok {
					log.Warn("Invalid message format: %v", msg.ID)
					continue
				}

				rows = append(rows, row)
				messageIDs = append(messageIDs, msg.ID)
			}

			if len(rows) > 0 {
				if err := chClient.InsertAuthEvents(ctx, rows); err != nil {
					log.Error("Failed to insert audit batch: %v", err)
					continue
				}
				log.Debug("Inserted %d audit events", len(rows))
			}

			if len(messageIDs) > 0 {
				if err := client.XAck(ctx, streamName, consumerGroup, messageIDs...).Err(); err != nil {
					log.Error("Failed to acknowledge messages: %v", err)
				}
			}
		}
	}
}

func toAuthEvent(msg redislib.XMessage) (clickhouse.AuthEvent, bool) {
	eventType, ok := msg.Values["event_type"].(string)
	if !ok {
		return clickhouse.AuthEvent{}, false
	}

	row := clickhouse.AuthEvent{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		OccurredAt: time.Now(),
	}

	if ts, ok := msg.Values["timestamp"].(string); ok {
		if unix, err := strconv.ParseInt(ts, 10, 64); err == nil {
			row.OccurredAt = time.Unix(unix, 0)
		}
	}
	if userID, ok := msg.Values["user_id"].(string); ok {
		row.UserID = userID
	}
	if email, ok := msg.Values["email"].(string); ok {
		row.Email = email
	}
	if ip, ok := msg.Values["ip"].(string); ok {
		row.IPAddress = ip
	}
	if ua, ok := msg.Values["user_agent"].(string); ok {
		row.UserAgent = ua
		annotateClient(&row, ua)
	}

	return row, true
}

// annotateClient fills the fingerprint columns of an audit row from
// the raw User-Agent header. Crawlers probing the auth endpoints get
// tagged so sign-in activity can be filtered from bot noise.
func annotateClient(row *clickhouse.AuthEvent, uaString string) {
	ua := user_agent.New(uaString)

	name, version := ua.Browser()
	row.Browser = name
	if version != "" {
		row.Browser = name + "/" + version
	}
	row.OS = ua.OS()

	switch {
	case ua.Bot():
		row.DeviceType = "bot"
	case ua.Mobile():
		row.DeviceType = "mobile"
	default:
		row.DeviceType = "desktop"
	}
}
