package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"omnisearch/domain"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// queryBatchSize bounds each range-read chunk so the context deadline is
// checked between batches rather than once per scan.
const queryBatchSize = 500

type EventRepository struct {
	DB *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{DB: db}
}

// ---- Rows ----

// Compound indexes match the query filters: (user_id, timestamp) and
// (variant, timestamp).
type impressionRow struct {
	ID             string            `gorm:"column:id;primaryKey"`
	UserID         string            `gorm:"column:user_id;not null;index:idx_impressions_user_time,priority:1"`
	Query          string            `gorm:"column:query;not null"`
	Variant        string            `gorm:"column:variant;not null;index:idx_impressions_variant_time,priority:1"`
	ResultsCount   int               `gorm:"column:results_count"`
	ResponseTimeMs float64           `gorm:"column:response_time_ms"`
	SessionID      string            `gorm:"column:session_id"`
	Metadata       datatypes.JSONMap `gorm:"column:metadata;type:jsonb"`
	Timestamp      time.Time         `gorm:"column:timestamp;not null;index;index:idx_impressions_user_time,priority:2;index:idx_impressions_variant_time,priority:2"`
}

func (impressionRow) TableName() string {
	return "impressions"
}

type clickRow struct {
	ID             string            `gorm:"column:id;primaryKey"`
	UserID         string            `gorm:"column:user_id;not null;index:idx_clicks_user_time,priority:1"`
	ProductID      string            `gorm:"column:product_id;not null"`
	Rank           int               `gorm:"column:rank"`
	SearchQuery    string            `gorm:"column:search_query"`
	Variant        string            `gorm:"column:variant;not null;index:idx_clicks_variant_time,priority:1"`
	ResponseTimeMs float64           `gorm:"column:response_time_ms"`
	Source         string            `gorm:"column:source;not null"`
	SessionID      string            `gorm:"column:session_id"`
	Metadata       datatypes.JSONMap `gorm:"column:metadata;type:jsonb"`
	Timestamp      time.Time         `gorm:"column:timestamp;not null;index;index:idx_clicks_user_time,priority:2;index:idx_clicks_variant_time,priority:2"`
}

func (clickRow) TableName() string {
	return "clicks"
}

// AutoMigrate creates the event tables and their indexes.
func (r *EventRepository) AutoMigrate() error {
	if err := r.DB.AutoMigrate(&impressionRow{}, &clickRow{}); err != nil {
		return fmt.Errorf("failed to migrate event tables: %w", err)
	}
	return nil
}

// ---- Writes ----

func (r *EventRepository) SaveImpression(ctx context.Context, imp domain.Impression) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	row := impressionRowFrom(imp)
	if err := r.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save impression: %w", err)
	}

	return nil
}

func (r *EventRepository) SaveClick(ctx context.Context, click domain.ClickEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	row := clickRowFrom(click)
	if err := r.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save click: %w", err)
	}

	return nil
}

// ---- Range reads ----

// QueryImpressions reads all impressions in the window matching the filter,
// in batches. If the context deadline fires mid-scan, the rows read so far
// are returned along with domain.ErrQueryTruncated.
func (r *EventRepository) QueryImpressions(ctx context.Context, filter domain.EventFilter, since time.Time) ([]domain.Impression, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	q := r.DB.WithContext(ctx).Model(&impressionRow{}).Where("timestamp >= ?", since)
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Variant != "" {
		q = q.Where("variant = ?", filter.Variant)
	}

	var out []domain.Impression
	var batch []impressionRow
	err := q.Order("timestamp ASC").FindInBatches(&batch, queryBatchSize, func(tx *gorm.DB, batchNo int) error {
		for _, row := range batch {
			out = append(out, row.toDomain())
		}
		if err := ctx.Err(); err != nil {
			return domain.ErrQueryTruncated
		}
		return nil
	}).Error

	if errors.Is(err, domain.ErrQueryTruncated) {
		return out, domain.ErrQueryTruncated
	}
	if err != nil {
		// A deadline can also fire inside a batch's statement, in which
		// case the driver error comes back instead of the callback's.
		// The rows already read are still good.
		if ctx.Err() != nil {
			return out, domain.ErrQueryTruncated
		}
		return nil, fmt.Errorf("failed to query impressions: %w", err)
	}

	return out, nil
}

// QueryClicks mirrors QueryImpressions for the clicks table.
func (r *EventRepository) QueryClicks(ctx context.Context, filter domain.EventFilter, since time.Time) ([]domain.ClickEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	q := r.DB.WithContext(ctx).Model(&clickRow{}).Where("timestamp >= ?", since)
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Variant != "" {
		q = q.Where("variant = ?", filter.Variant)
	}

	var out []domain.ClickEvent
	var batch []clickRow
	err := q.Order("timestamp ASC").FindInBatches(&batch, queryBatchSize, func(tx *gorm.DB, batchNo int) error {
		for _, row := range batch {
			out = append(out, row.toDomain())
		}
		if err := ctx.Err(); err != nil {
			return domain.ErrQueryTruncated
		}
		return nil
	}).Error

	if errors.Is(err, domain.ErrQueryTruncated) {
		return out, domain.ErrQueryTruncated
	}
	if err != nil {
		if ctx.Err() != nil {
			return out, domain.ErrQueryTruncated
		}
		return nil, fmt.Errorf("failed to query clicks: %w", err)
	}

	return out, nil
}

// ---- Maintenance ----

// DeleteAll clears both event tables. Test/ops use only.
func (r *EventRepository) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	session := r.DB.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	if err := session.Delete(&clickRow{}).Error; err != nil {
		return fmt.Errorf("failed to delete clicks: %w", err)
	}
	if err := session.Delete(&impressionRow{}).Error; err != nil {
		return fmt.Errorf("failed to delete impressions: %w", err)
	}

	return nil
}

// PurgeBefore drops events older than the cutoff and reports how many rows
// went away. Used by the retention sweep.
func (r *EventRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error: %w", err)
	}

	var purged int64

	res := r.DB.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&clickRow{})
	if res.Error != nil {
		return purged, fmt.Errorf("failed to purge clicks: %w", res.Error)
	}
	purged += res.RowsAffected

	res = r.DB.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&impressionRow{})
	if res.Error != nil {
		return purged, fmt.Errorf("failed to purge impressions: %w", res.Error)
	}
	purged += res.RowsAffected

	return purged, nil
}

// ---- Mapping ----

func impressionRowFrom(imp domain.Impression) impressionRow {
	return impressionRow{
		ID:             imp.ID,
		UserID:         imp.UserID,
		Query:          imp.Query,
		Variant:        imp.Variant.String(),
		ResultsCount:   imp.ResultsCount,
		ResponseTimeMs: imp.ResponseTimeMs,
		SessionID:      imp.SessionID,
		Metadata:       imp.Metadata,
		Timestamp:      imp.Timestamp,
	}
}

func (row impressionRow) toDomain() domain.Impression {
	return domain.Impression{
		ID:             row.ID,
		UserID:         row.UserID,
		Query:          row.Query,
		Variant:        domain.Variant(row.Variant),
		ResultsCount:   row.ResultsCount,
		ResponseTimeMs: row.ResponseTimeMs,
		SessionID:      row.SessionID,
		Metadata:       row.Metadata,
		Timestamp:      row.Timestamp,
	}
}

func clickRowFrom(click domain.ClickEvent) clickRow {
	return clickRow{
		ID:             click.ID,
		UserID:         click.UserID,
		ProductID:      click.ProductID,
		Rank:           click.Rank,
		SearchQuery:    click.SearchQuery,
		Variant:        click.Variant.String(),
		ResponseTimeMs: click.ResponseTimeMs,
		Source:         string(click.Source),
		SessionID:      click.SessionID,
		Metadata:       click.Metadata,
		Timestamp:      click.Timestamp,
	}
}

func (row clickRow) toDomain() domain.ClickEvent {
	return domain.ClickEvent{
		ID:             row.ID,
		UserID:         row.UserID,
		ProductID:      row.ProductID,
		Rank:           row.Rank,
		SearchQuery:    row.SearchQuery,
		Variant:        domain.Variant(row.Variant),
		ResponseTimeMs: row.ResponseTimeMs,
		Source:         domain.ClickSource(row.Source),
		SessionID:      row.SessionID,
		Metadata:       row.Metadata,
		Timestamp:      row.Timestamp,
	}
}
