package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cschleiden/loanflow/backend/history"
	"github.com/redis/go-redis/v9"
)

func marshalEvent(event *history.Event) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshaling event: %w", err)
	}

	return string(data), nil
}

func unmarshalEvents(values []string) ([]*history.Event, error) {
	events := make([]*history.Event, 0, len(values))
	for _, v := range values {
		var event *history.Event
		if err := json.Unmarshal([]byte(v), &event); err != nil {
			return nil, fmt.Errorf("unmarshaling event: %w", err)
		}

		events = append(events, event)
	}

	return events, nil
}

// appendEventsP appends the given events to the LIST at key as part of the pipeline
func appendEventsP(ctx context.Context, p redis.Pipeliner, key string, events []*history.Event) error {
	if len(events) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(events))
	for _, event := range events {
		v, err := marshalEvent(event)
		if err != nil {
			return err
		}

		values = append(values, v)
	}

	return p.RPush(ctx, key, values...).Err()
}

func readEvents(ctx context.Context, rdb redis.UniversalClient, key string, start int64) ([]*history.Event, error) {
	values, err := rdb.LRange(ctx, key, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}

	return unmarshalEvents(values)
}
