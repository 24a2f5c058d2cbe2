package docstore

import (
	"context"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"

	"farmwatch/internal/alerts"
	"farmwatch/internal/model"
)

var streamID = regexp.MustCompile(`^[0-9]+-[0-9]+$`)

// resolveScript marks an alert read and, on the first resolution only, sets
// resolved_at and the note together. Returns 1 when this call resolved it.
var resolveScript = redis.NewScript(`
redis.call("HSET", KEYS[1], "read", "1")
if redis.call("HSETNX", KEYS[1], "resolved_at", ARGV[1]) == 1 then
  redis.call("HSET", KEYS[1], "note", ARGV[2])
  return 1
end
return 0
`)

// AlertStore implements alerts.Store on Redis. XADD to one uncapped stream
// assigns ids and holds the immutable fields; read and resolution state
// lives in a hash per alert.
type AlertStore struct {
	s *Store
}

func NewAlertStore(s *Store) *AlertStore {
	return &AlertStore{s: s}
}

func (a *AlertStore) stream() string {
	return a.s.key("alerts")
}

func (a *AlertStore) state(id string) string {
	return a.s.key("alerts", "state", id)
}

func (a *AlertStore) Create(ctx context.Context, d alerts.Draft) (string, error) {
	d, err := alerts.Normalize(d)
	if err != nil {
		return "", err
	}
	return a.s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: a.stream(),
		Values: map[string]any{
			"title":      d.Title,
			"message":    d.Message,
			"priority":   string(d.Priority),
			"source":     d.Source,
			"created_at": a.s.now().Format(time.RFC3339Nano),
		},
	}).Result()
}

func (a *AlertStore) Get(ctx context.Context, id string) (model.Alert, error) {
	msg, err := a.entry(ctx, id)
	if err != nil {
		return model.Alert{}, err
	}
	st, err := a.s.rdb.HGetAll(ctx, a.state(id)).Result()
	if err != nil {
		return model.Alert{}, err
	}
	return decodeAlert(msg, st), nil
}

// List pages backwards through the stream so the unread filter is applied
// before the limit.
func (a *AlertStore) List(ctx context.Context, unreadOnly bool, limit int) ([]model.Alert, error) {
	limit = alerts.Limit(limit)
	page := int64(max(limit, 100))
	end := "+"
	out := make([]model.Alert, 0, limit)
	for len(out) < limit {
		msgs, err := a.s.rdb.XRevRangeN(ctx, a.stream(), end, "-", page).Result()
		if err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			break
		}
		states := make([]*redis.MapStringStringCmd, len(msgs))
		if _, err := a.s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
			for i, m := range msgs {
				states[i] = p.HGetAll(ctx, a.state(m.ID))
			}
			return nil
		}); err != nil {
			return nil, err
		}
		for i, m := range msgs {
			alert := decodeAlert(m, states[i].Val())
			if unreadOnly && alert.Read {
				continue
			}
			out = append(out, alert)
			if len(out) == limit {
				break
			}
		}
		if int64(len(msgs)) < page {
			break
		}
		end = "(" + msgs[len(msgs)-1].ID
	}
	return out, nil
}

func (a *AlertStore) MarkRead(ctx context.Context, id string) error {
	if _, err := a.entry(ctx, id); err != nil {
		return err
	}
	return a.s.rdb.HSet(ctx, a.state(id), "read", "1").Err()
}

// Resolve applies read, resolved_at and the note in one script so a reader
// never sees a resolution without its note. Later calls change nothing.
func (a *AlertStore) Resolve(ctx context.Context, id, note string) error {
	if _, err := a.entry(ctx, id); err != nil {
		return err
	}
	return resolveScript.Run(ctx, a.s.rdb, []string{a.state(id)},
		a.s.now().Format(time.RFC3339Nano), note).Err()
}

func (a *AlertStore) entry(ctx context.Context, id string) (redis.XMessage, error) {
	if !streamID.MatchString(id) {
		return redis.XMessage{}, alerts.ErrNotFound
	}
	msgs, err := a.s.rdb.XRangeN(ctx, a.stream(), id, id, 1).Result()
	if err != nil {
		return redis.XMessage{}, err
	}
	if len(msgs) == 0 {
		return redis.XMessage{}, alerts.ErrNotFound
	}
	return msgs[0], nil
}

func decodeAlert(msg redis.XMessage, state map[string]string) model.Alert {
	str := func(k string) string {
		v, _ := msg.Values[k].(string)
		return v
	}
	alert := model.Alert{
		ID:       msg.ID,
		Title:    str("title"),
		Message:  str("message"),
		Priority: model.ParsePriority(str("priority")),
		Source:   str("source"),
	}
	if ts, err := time.Parse(time.RFC3339Nano, str("created_at")); err == nil {
		alert.CreatedAt = ts
	}
	alert.Read = state["read"] == "1"
	if raw, ok := state["resolved_at"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			alert.Resolved = true
			alert.Read = true
			alert.ResolvedAt = &ts
			alert.ResolutionNote = state["note"]
		}
	}
	return alert
}

var _ alerts.Store = (*AlertStore)(nil)
