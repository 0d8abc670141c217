package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/skillbridge/agent/dispatch"
	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	storeDatabase = "database"
	saveRetries   = 3
)

// InvocationRecord is one conversation's active invocation.
type InvocationRecord struct {
	ConversationID string `gorm:"primaryKey;size:191"`
	InvocationID   string `gorm:"size:64;index"`
	SkillID        string `gorm:"size:191;index"`
	Phase          string `gorm:"size:32"`
	Data           []byte
	UpdatedAt      time.Time `gorm:"index"`
}

// TableName implements gorm's tabler.
func (InvocationRecord) TableName() string { return "skill_invocations" }

// SkillContextRecord is one conversation's SkillContext.
type SkillContextRecord struct {
	ConversationID string `gorm:"primaryKey;size:191"`
	Data           []byte
	UpdatedAt      time.Time `gorm:"index"`
}

// TableName implements gorm's tabler.
func (SkillContextRecord) TableName() string { return "skill_contexts" }

// GormStore keeps conversation state in SQL tables. Rows older than the TTL
// read as absent; PurgeExpired removes them.
type GormStore struct {
	pool   *database.PoolManager
	ttl    time.Duration
	obs    Observer
	logger *zap.Logger
	now    func() time.Time
}

// NewGormStore migrates the schema and returns the store.
func NewGormStore(pool *database.PoolManager, ttl time.Duration, obs Observer, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	if err := pool.DB(context.Background()).AutoMigrate(&InvocationRecord{}, &SkillContextRecord{}); err != nil {
		return nil, fmt.Errorf("migrate state tables: %w", err)
	}
	return &GormStore{
		pool:   pool,
		ttl:    ttl,
		obs:    obs,
		logger: logger.With(zap.String("component", "sql_state")),
		now:    time.Now,
	}, nil
}

// LoadInvocation implements dispatch.Store.
func (s *GormStore) LoadInvocation(ctx context.Context, conversationID string) (*dispatch.Invocation, error) {
	defer s.observe("load_invocation", time.Now())

	var rec InvocationRecord
	err := s.live(s.pool.DB(ctx)).Where("conversation_id = ?", conversationID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load invocation: %w", err)
	}

	var inv dispatch.Invocation
	if err := json.Unmarshal(rec.Data, &inv); err != nil {
		return nil, fmt.Errorf("decode invocation %s: %w", rec.InvocationID, err)
	}
	return &inv, nil
}

// SaveInvocation implements dispatch.Store.
func (s *GormStore) SaveInvocation(ctx context.Context, inv *dispatch.Invocation) error {
	defer s.observe("save_invocation", time.Now())

	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invocation: %w", err)
	}
	rec := InvocationRecord{
		ConversationID: inv.ConversationID,
		InvocationID:   inv.ID,
		SkillID:        inv.SkillID,
		Phase:          string(inv.Phase),
		Data:           data,
		UpdatedAt:      s.now().UTC(),
	}
	return s.upsert(ctx, &rec)
}

// DeleteInvocation implements dispatch.Store.
func (s *GormStore) DeleteInvocation(ctx context.Context, conversationID string) error {
	defer s.observe("delete_invocation", time.Now())

	err := s.pool.DB(ctx).Where("conversation_id = ?", conversationID).Delete(&InvocationRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete invocation: %w", err)
	}
	return nil
}

// LoadSkillContext implements dispatch.Store.
func (s *GormStore) LoadSkillContext(ctx context.Context, conversationID string) (skills.SkillContext, error) {
	defer s.observe("load_context", time.Now())

	var rec SkillContextRecord
	err := s.live(s.pool.DB(ctx)).Where("conversation_id = ?", conversationID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return skills.NewSkillContext(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load skill context: %w", err)
	}

	sc := skills.NewSkillContext()
	if err := json.Unmarshal(rec.Data, &sc); err != nil {
		return nil, fmt.Errorf("decode skill context: %w", err)
	}
	return sc, nil
}

// SaveSkillContext implements dispatch.Store.
func (s *GormStore) SaveSkillContext(ctx context.Context, conversationID string, sc skills.SkillContext) error {
	defer s.observe("save_context", time.Now())

	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode skill context: %w", err)
	}
	return s.upsert(ctx, &SkillContextRecord{
		ConversationID: conversationID,
		Data:           data,
		UpdatedAt:      s.now().UTC(),
	})
}

// PurgeExpired deletes rows older than the TTL and returns how many went.
func (s *GormStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-s.ttl)
	var purged int64
	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		for _, model := range []any{&InvocationRecord{}, &SkillContextRecord{}} {
			res := tx.Where("updated_at < ?", cutoff).Delete(model)
			if res.Error != nil {
				return res.Error
			}
			purged += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge expired state: %w", err)
	}
	if purged > 0 {
		s.logger.Info("purged expired conversation state", zap.Int64("rows", purged))
	}
	return purged, nil
}

func (s *GormStore) upsert(ctx context.Context, rec any) error {
	err := s.pool.WithTransactionRetry(ctx, saveRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
	})
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// live hides rows past the TTL.
func (s *GormStore) live(db *gorm.DB) *gorm.DB {
	if s.ttl <= 0 {
		return db
	}
	return db.Where("updated_at >= ?", s.now().UTC().Add(-s.ttl))
}

func (s *GormStore) observe(op string, start time.Time) {
	s.obs.RecordStoreOp(storeDatabase, op, time.Since(start))
}
