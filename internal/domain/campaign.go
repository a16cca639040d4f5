package domain

import (
	"time"
)

// Campaign is an advertising campaign as reported by the upstream API.
type Campaign struct {
	ID            int64      `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Description   string     `json:"description,omitempty" db:"description"`
	TrackingURL   string     `json:"tracking_url,omitempty" db:"tracking_url"`
	IsServing     bool       `json:"is_serving" db:"is_serving"`
	ServingURL    string     `json:"serving_url,omitempty" db:"serving_url"`
	TrafficWeight int        `json:"traffic_weight" db:"traffic_weight"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	Slug          string     `json:"slug,omitempty" db:"slug"`
	Path          string     `json:"path,omitempty" db:"path"`
	SyncTimestamp time.Time  `json:"sync_timestamp" db:"sync_timestamp"`
}

// HourlyMetrics is one campaign's counters for a single UTC hour.
// UnixHour is seconds-since-epoch divided by 3600.
type HourlyMetrics struct {
	CampaignID        int64     `json:"campaign_id" db:"campaign_id"`
	UnixHour          int64     `json:"unix_hour" db:"unix_hour"`
	CreditCards       int64     `json:"credit_cards" db:"credit_cards"`
	EmailAccounts     int64     `json:"email_accounts" db:"email_accounts"`
	GoogleAccounts    int64     `json:"google_accounts" db:"google_accounts"`
	Sessions          int64     `json:"sessions" db:"sessions"`
	TotalAccounts     int64     `json:"total_accounts" db:"total_accounts"`
	Registrations     int64     `json:"registrations" db:"registrations"`
	Messages          int64     `json:"messages" db:"messages"`
	CompanionChats    int64     `json:"companion_chats" db:"companion_chats"`
	ChatRoomUserChats int64     `json:"chat_room_user_chats" db:"chat_room_user_chats"`
	TotalUserChats    int64     `json:"total_user_chats" db:"total_user_chats"`
	Media             int64     `json:"media" db:"media"`
	PaymentMethods    int64     `json:"payment_methods" db:"payment_methods"`
	ConvertedUsers    int64     `json:"converted_users" db:"converted_users"`
	TermsAcceptances  int64     `json:"terms_acceptances" db:"terms_acceptances"`
	SyncTimestamp     time.Time `json:"sync_timestamp" db:"sync_timestamp"`
}

// UnixHourOf returns the unix hour containing t.
func UnixHourOf(t time.Time) int64 {
	return t.Unix() / 3600
}

// HourStart returns the start of a unix hour in UTC.
func HourStart(unixHour int64) time.Time {
	return time.Unix(unixHour*3600, 0).UTC()
}
