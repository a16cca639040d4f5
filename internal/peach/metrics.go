package peach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/campaign-warehouse/internal/domain"
)

// DefaultMetrics is the metric list requested for hourly syncs.
const DefaultMetrics = "registrations,messages,media,payment_methods,charge_revenue,terms_acceptances"

// Bucket is one time bucket of the metrics endpoint. Metric groups are kept
// raw because their shapes vary by metric.
type Bucket struct {
	StartTime string                     `json:"start_time"`
	EndTime   string                     `json:"end_time"`
	Metrics   map[string]json.RawMessage `json:"metrics"`
}

// HourlyBuckets fetches one_hour buckets for [start, end) and the given
// campaigns. The endpoint may answer with a bare list or {"buckets": [...]}.
func (c *Client) HourlyBuckets(ctx context.Context, start, end time.Time, campaignIDs []int64) ([]Bucket, error) {
	params := url.Values{}
	params.Set("start_time", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("end_time", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("bucket", "one_hour")
	params.Set("metrics", DefaultMetrics)
	if len(campaignIDs) > 0 {
		ids := make([]string, len(campaignIDs))
		for i, id := range campaignIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		params.Set("campaign_ids", strings.Join(ids, ","))
	}

	var raw json.RawMessage
	if err := c.get(ctx, "/admin/metrics", params, &raw); err != nil {
		return nil, err
	}
	buckets, err := decodeBuckets(raw)
	if err != nil {
		return nil, err
	}
	for i, b := range buckets {
		if b.StartTime == "" || b.EndTime == "" || b.Metrics == nil {
			return nil, fmt.Errorf("peach: bucket %d missing start_time, end_time or metrics", i)
		}
	}
	return buckets, nil
}

// CampaignHourly fetches and parses one campaign's hourly metrics.
func (c *Client) CampaignHourly(ctx context.Context, campaignID int64, start, end time.Time) ([]domain.HourlyMetrics, error) {
	buckets, err := c.HourlyBuckets(ctx, start, end, []int64{campaignID})
	if err != nil {
		return nil, err
	}
	out := make([]domain.HourlyMetrics, 0, len(buckets))
	for _, b := range buckets {
		m, err := ParseBucket(b, campaignID)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func decodeBuckets(raw json.RawMessage) ([]Bucket, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("peach: empty metrics response")
	}
	var buckets []Bucket
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &buckets); err != nil {
			return nil, fmt.Errorf("peach: decode buckets: %w", err)
		}
	case '{':
		var wrapped struct {
			Buckets *[]Bucket `json:"buckets"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("peach: decode buckets: %w", err)
		}
		if wrapped.Buckets == nil {
			return nil, fmt.Errorf("peach: metrics response has no buckets field")
		}
		buckets = *wrapped.Buckets
	default:
		return nil, fmt.Errorf("peach: unexpected metrics response")
	}
	return buckets, nil
}

// ParseBucket converts a metrics bucket into an hourly row. Anonymous
// registrations count as sessions; email, google and facebook sign-ups are
// registrations; credit cards are added payment methods.
func ParseBucket(b Bucket, campaignID int64) (domain.HourlyMetrics, error) {
	start, err := time.Parse(time.RFC3339, b.StartTime)
	if err != nil {
		return domain.HourlyMetrics{}, fmt.Errorf("peach: bucket start_time %q: %w", b.StartTime, err)
	}

	regs := group(b.Metrics, "registrations")
	messages := group(b.Metrics, "messages")
	media := group(b.Metrics, "media")
	terms := group(b.Metrics, "terms_acceptances")
	payments := nested(b.Metrics, "payment_methods", "payment_methods")

	email, google, facebook := regs["email"], regs["google"], regs["facebook"]
	return domain.HourlyMetrics{
		CampaignID:        campaignID,
		UnixHour:          domain.UnixHourOf(start),
		CreditCards:       payments["added"],
		EmailAccounts:     email,
		GoogleAccounts:    google,
		Sessions:          regs["anonymous"],
		TotalAccounts:     regs["total"],
		Registrations:     email + google + facebook,
		Messages:          messages["total"],
		CompanionChats:    messages["companion_chats"],
		ChatRoomUserChats: messages["chat_room_user_chats"],
		TotalUserChats:    messages["total_user_chats"],
		Media:             media["total"],
		PaymentMethods:    payments["added"],
		TermsAcceptances:  terms["count"],
	}, nil
}

// group decodes a metric group into its integer fields. Non-object groups
// and non-numeric fields read as zero.
func group(metrics map[string]json.RawMessage, name string) map[string]int64 {
	out := map[string]int64{}
	raw, ok := metrics[name]
	if !ok {
		return out
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return out
	}
	for k, v := range fields {
		var n float64
		if err := json.Unmarshal(v, &n); err == nil {
			out[k] = int64(n)
		}
	}
	return out
}

func nested(metrics map[string]json.RawMessage, name, inner string) map[string]int64 {
	raw, ok := metrics[name]
	if !ok {
		return map[string]int64{}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return map[string]int64{}
	}
	return group(fields, inner)
}
