package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Soravit-Ice/Random-Call-BE/internal/models"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// Gorm implements Store on top of a gorm connection (MySQL in production).
type Gorm struct{ db *gorm.DB }

func NewGorm(db *gorm.DB) *Gorm { return &Gorm{db: db} }

var _ Store = (*Gorm)(nil)

func (s *Gorm) FindUser(ctx context.Context, id string) (*models.UserModel, error) {
	var u models.UserModel
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Gorm) FindCandidates(ctx context.Context, q CandidateQuery) ([]models.UserModel, error) {
	db := s.db.WithContext(ctx)
	blockedByMe := db.Model(&models.BlockModel{}).Select("blocked_id").Where("blocker_id = ?", q.ExcludeID)
	blockingMe := db.Model(&models.BlockModel{}).Select("blocker_id").Where("blocked_id = ?", q.ExcludeID)

	tx := db.Model(&models.UserModel{}).
		Where("id <> ? AND is_online = ?", q.ExcludeID, true).
		Where("id NOT IN (?)", blockedByMe).
		Where("id NOT IN (?)", blockingMe)
	if !q.IncludeInCall {
		tx = tx.Where("in_call = ?", false)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var users []models.UserModel
	if err := tx.Order("created_at ASC, id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Gorm) UpdateUser(ctx context.Context, id string, patch UserPatch) error {
	db := s.db.WithContext(ctx)
	if !patch.empty() {
		res := db.Model(&models.UserModel{}).Where("id = ?", id).Updates(patch.columns())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
	}
	// MySQL reports zero affected rows when nothing changed, so tell that
	// apart from a missing row.
	var n int64
	if err := db.Model(&models.UserModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Gorm) ResetAllInCall(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.UserModel{}).Where("in_call = ?", true).Update("in_call", false)
	return res.RowsAffected, res.Error
}

func (s *Gorm) CreateCallLog(ctx context.Context, log *models.CallLogModel) error {
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(log).Error
}

func (s *Gorm) FindCallLog(ctx context.Context, id string) (*models.CallLogModel, error) {
	var c models.CallLogModel
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Gorm) FindStaleCallLogs(ctx context.Context, cutoff time.Time) ([]models.CallLogModel, error) {
	var logs []models.CallLogModel
	err := s.db.WithContext(ctx).
		Where("ended_at IS NULL AND started_at < ?", cutoff).
		Order("started_at ASC").
		Find(&logs).Error
	return logs, err
}

func (s *Gorm) Apply(ctx context.Context, ops ...Op) error {
	if len(ops) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			if err := applyGormOp(tx, op); err != nil {
				return err
			}
		}
		return nil
	})
	return mapLockError(err)
}

func applyGormOp(tx *gorm.DB, op Op) error {
	switch o := op.(type) {
	case SetInCall:
		q := tx.Model(&models.UserModel{}).Where("id = ?", o.UserID)
		if o.Expect != nil {
			// the row lock taken by UPDATE re-reads in_call at commit time,
			// so two reservations of the same user serialize here
			q = q.Where("in_call = ?", *o.Expect)
		}
		res := q.Update("in_call", o.InCall)
		if res.Error != nil {
			return res.Error
		}
		if o.Expect != nil && res.RowsAffected == 0 {
			return ErrConflict
		}
	case CloseCall:
		res := tx.Model(&models.CallLogModel{}).
			Where("id = ? AND ended_at IS NULL", o.CallID).
			Update("ended_at", o.EndedAt)
		if res.Error != nil {
			return res.Error
		}
		if o.RequireOpen && res.RowsAffected == 0 {
			return ErrConflict
		}
	default:
		return fmt.Errorf("store: unsupported op %T", op)
	}
	return nil
}

// mapLockError turns InnoDB deadlock and lock-wait failures into
// ErrConflict; the transaction was rolled back and can be retried.
func mapLockError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrDeadlock, mysqlErrLockWaitTimeout:
			return fmt.Errorf("%w: %v", ErrConflict, myErr)
		}
	}
	return err
}
