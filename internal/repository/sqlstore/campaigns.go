package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/campaign-warehouse/internal/domain"
	"github.com/ignite/campaign-warehouse/internal/service/hierarchy"
)

type campaignRow struct {
	ID            int64        `db:"id"`
	Name          string       `db:"name"`
	Description   string       `db:"description"`
	TrackingURL   string       `db:"tracking_url"`
	IsServing     bool         `db:"is_serving"`
	ServingURL    string       `db:"serving_url"`
	TrafficWeight int          `db:"traffic_weight"`
	DeletedAt     sql.NullTime `db:"deleted_at"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
	Slug          string       `db:"slug"`
	Path          string       `db:"path"`
	SyncTimestamp time.Time    `db:"sync_timestamp"`
}

func (r campaignRow) campaign() domain.Campaign {
	return domain.Campaign{
		ID: r.ID, Name: r.Name, Description: r.Description, TrackingURL: r.TrackingURL,
		IsServing: r.IsServing, ServingURL: r.ServingURL, TrafficWeight: r.TrafficWeight,
		DeletedAt: timePtr(r.DeletedAt), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		Slug: r.Slug, Path: r.Path, SyncTimestamp: r.SyncTimestamp,
	}
}

const campaignColumns = `id, name, description, tracking_url, is_serving, serving_url, traffic_weight,
	deleted_at, created_at, updated_at, slug, path, sync_timestamp`

// UpsertCampaigns stores campaigns in one transaction and reports how many
// were new and how many replaced an existing row.
func (s *Store) UpsertCampaigns(ctx context.Context, campaigns []domain.Campaign) (inserted, updated int, err error) {
	syncedAt := s.now()
	err = s.inTx(ctx, func(tx *Store) error {
		for _, c := range campaigns {
			var n int
			if err := tx.get(ctx, &n, `SELECT COUNT(*) FROM campaigns WHERE id = ?`, c.ID); err != nil {
				return fmt.Errorf("check campaign %d: %w", c.ID, err)
			}
			_, err := tx.exec(ctx, `
				INSERT INTO campaigns (`+campaignColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					name = excluded.name,
					description = excluded.description,
					tracking_url = excluded.tracking_url,
					is_serving = excluded.is_serving,
					serving_url = excluded.serving_url,
					traffic_weight = excluded.traffic_weight,
					deleted_at = excluded.deleted_at,
					created_at = excluded.created_at,
					updated_at = excluded.updated_at,
					slug = excluded.slug,
					path = excluded.path,
					sync_timestamp = excluded.sync_timestamp
			`,
				c.ID, c.Name, c.Description, c.TrackingURL, c.IsServing, c.ServingURL,
				c.TrafficWeight, nullTime(c.DeletedAt), c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
				c.Slug, c.Path, syncedAt,
			)
			if err != nil {
				return fmt.Errorf("upsert campaign %d: %w", c.ID, err)
			}
			if n == 0 {
				inserted++
			} else {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

// GetCampaign returns one stored campaign.
func (s *Store) GetCampaign(ctx context.Context, id int64) (*domain.Campaign, error) {
	var row campaignRow
	err := s.get(ctx, &row, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hierarchy.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	c := row.campaign()
	return &c, nil
}

// CampaignName returns the stored campaign's name.
func (s *Store) CampaignName(ctx context.Context, id int64) (string, error) {
	var name string
	err := s.get(ctx, &name, `SELECT name FROM campaigns WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", hierarchy.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("campaign name: %w", err)
	}
	return name, nil
}

// ListCampaignRefs returns the id and name of every stored campaign.
func (s *Store) ListCampaignRefs(ctx context.Context) ([]hierarchy.CampaignRef, error) {
	var refs []hierarchy.CampaignRef
	if err := s.selectAll(ctx, &refs, `SELECT id, name FROM campaigns ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	return refs, nil
}

// CampaignIDs returns the ids of campaigns that are not deleted.
func (s *Store) CampaignIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.selectAll(ctx, &ids, `SELECT id FROM campaigns WHERE deleted_at IS NULL ORDER BY id`); err != nil {
		return nil, fmt.Errorf("campaign ids: %w", err)
	}
	return ids, nil
}

const hourlyColumns = `campaign_id, unix_hour, credit_cards, email_accounts, google_accounts,
	sessions, total_accounts, registrations, messages, companion_chats, chat_room_user_chats,
	total_user_chats, media, payment_methods, converted_users, terms_acceptances, sync_timestamp`

// UpsertHourly stores hourly metric rows in one transaction, replacing any
// existing row for the same campaign and hour.
func (s *Store) UpsertHourly(ctx context.Context, rows []domain.HourlyMetrics) (int, error) {
	syncedAt := s.now()
	n := 0
	err := s.inTx(ctx, func(tx *Store) error {
		for _, m := range rows {
			_, err := tx.exec(ctx, `
				INSERT INTO hourly_data (`+hourlyColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (campaign_id, unix_hour) DO UPDATE SET
					credit_cards = excluded.credit_cards,
					email_accounts = excluded.email_accounts,
					google_accounts = excluded.google_accounts,
					sessions = excluded.sessions,
					total_accounts = excluded.total_accounts,
					registrations = excluded.registrations,
					messages = excluded.messages,
					companion_chats = excluded.companion_chats,
					chat_room_user_chats = excluded.chat_room_user_chats,
					total_user_chats = excluded.total_user_chats,
					media = excluded.media,
					payment_methods = excluded.payment_methods,
					converted_users = excluded.converted_users,
					terms_acceptances = excluded.terms_acceptances,
					sync_timestamp = excluded.sync_timestamp
			`,
				m.CampaignID, m.UnixHour, m.CreditCards, m.EmailAccounts, m.GoogleAccounts,
				m.Sessions, m.TotalAccounts, m.Registrations, m.Messages, m.CompanionChats,
				m.ChatRoomUserChats, m.TotalUserChats, m.Media, m.PaymentMethods,
				m.ConvertedUsers, m.TermsAcceptances, syncedAt,
			)
			if err != nil {
				return fmt.Errorf("upsert hourly %d/%d: %w", m.CampaignID, m.UnixHour, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RecentHourly returns the newest hourly rows of a campaign.
func (s *Store) RecentHourly(ctx context.Context, campaignID int64, limit int) ([]domain.HourlyMetrics, error) {
	var out []domain.HourlyMetrics
	err := s.selectAll(ctx, &out, `
		SELECT `+hourlyColumns+`
		FROM hourly_data
		WHERE campaign_id = ?
		ORDER BY unix_hour DESC
		LIMIT ?`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent hourly: %w", err)
	}
	return out, nil
}
