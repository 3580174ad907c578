package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"gomultibridge/types"
)

// migration upgrades one decoded record from version n to n+1
type migration func(rec map[string]any) error

// ongoingMigrations[i] upgrades an ongoing record from version i+1
var ongoingMigrations = []migration{
	collapseFees,
	nestCorrelation,
}

// completedMigrations[i] upgrades a completed record from version i+1
var completedMigrations = []migration{
	func(rec map[string]any) error { return inner(rec, collapseFees) },
	func(rec map[string]any) error {
		if err := inner(rec, nestCorrelation); err != nil {
			return err
		}
		return secondsToRFC3339(rec, "completedAt")
	},
}

func inner(rec map[string]any, m migration) error {
	t, ok := rec["transfer"].(map[string]any)
	if !ok {
		return fmt.Errorf("completed record without transfer")
	}
	t["schemaVersion"] = rec["schemaVersion"]
	return m(t)
}

// v1 stored the execution fee and the bridging fee as two separate objects
func collapseFees(rec map[string]any) error {
	var legs []any
	for _, f := range []struct {
		key   string
		title types.FeeTitle
	}{{"fee", types.FeeExecution}, {"bridgingFee", types.FeeBridging}} {
		raw, ok := rec[f.key]
		delete(rec, f.key)
		obj, ok2 := raw.(map[string]any)
		if !ok || !ok2 {
			continue
		}
		value, err := number(obj["amount"])
		if err != nil {
			return fmt.Errorf("%s amount: %w", f.key, err)
		}
		legs = append(legs, map[string]any{
			"title": string(f.title),
			"chain": obj["chain"],
			"amount": map[string]any{
				"token": obj["token"],
				"value": value,
			},
			"sufficiency": string(types.Undetermined),
		})
	}
	if len(legs) == 0 {
		return nil
	}
	params, ok := rec["params"].(map[string]any)
	if !ok {
		params = map[string]any{}
		rec["params"] = params
	}
	params["fees"] = legs
	return nil
}

// v2 kept correlation ids flat on the record and timestamps in unix seconds
func nestCorrelation(rec map[string]any) error {
	corr := map[string]any{}
	for from, to := range map[string]string{
		"messageHash":    "messageHash",
		"messageId":      "messageId",
		"extrinsicIndex": "submissionIndex",
	} {
		if v, ok := rec[from]; ok {
			if s, _ := v.(string); s != "" {
				corr[to] = s
			}
			delete(rec, from)
		}
	}
	rec["correlation"] = corr
	if err := secondsToRFC3339(rec, "createdAt"); err != nil {
		return err
	}
	return secondsToRFC3339(rec, "finalizedAt")
}

func secondsToRFC3339(rec map[string]any, key string) error {
	n, ok := rec[key].(json.Number)
	if !ok {
		return nil
	}
	secs, err := n.Int64()
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	rec[key] = time.Unix(secs, 0).UTC().Format(time.RFC3339)
	return nil
}

// number keeps big integers exact, legacy records stored them as strings
func number(v any) (json.Number, error) {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = x
	default:
		return "", fmt.Errorf("unexpected amount %v", v)
	}
	if _, ok := new(big.Int).SetString(s, 10); !ok {
		return "", fmt.Errorf("invalid amount %q", s)
	}
	return json.Number(s), nil
}

func decode(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// recordVersion prefers the version on the record over the store's
func recordVersion(rec map[string]any, fallback int) int {
	switch v := rec["schemaVersion"].(type) {
	case json.Number:
		if n, err := strconv.Atoi(v.String()); err == nil && n > 0 {
			return n
		}
	case float64:
		return int(v)
	}
	return fallback
}

func migrate(raw []byte, fallback int, steps []migration) ([]byte, error) {
	rec, err := decode(raw)
	if err != nil {
		return nil, err
	}
	version := recordVersion(rec, fallback)
	if version > types.SchemaVersion {
		return nil, fmt.Errorf("record schema %d is newer than %d", version, types.SchemaVersion)
	}
	for v := version; v < types.SchemaVersion; v++ {
		if v-1 >= len(steps) || v < 1 {
			return nil, fmt.Errorf("no migration from schema %d", v)
		}
		if err := steps[v-1](rec); err != nil {
			return nil, fmt.Errorf("migrate schema %d: %w", v, err)
		}
		rec["schemaVersion"] = v + 1
	}
	return json.Marshal(rec)
}

// MigrateOngoing upgrades a raw ongoing record to the current schema.
// fallback is used when the record carries no version of its own.
func MigrateOngoing(raw []byte, fallback int) (*types.OngoingTransfer, error) {
	out, err := migrate(raw, fallback, ongoingMigrations)
	if err != nil {
		return nil, err
	}
	var t types.OngoingTransfer
	if err := json.Unmarshal(out, &t); err != nil {
		return nil, err
	}
	t.SchemaVersion = types.SchemaVersion
	return &t, nil
}

func MigrateCompleted(raw []byte, fallback int) (*types.CompletedTransfer, error) {
	out, err := migrate(raw, fallback, completedMigrations)
	if err != nil {
		return nil, err
	}
	var c types.CompletedTransfer
	if err := json.Unmarshal(out, &c); err != nil {
		return nil, err
	}
	c.SchemaVersion = types.SchemaVersion
	c.Transfer.SchemaVersion = types.SchemaVersion
	return &c, nil
}
