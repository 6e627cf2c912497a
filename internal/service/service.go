// Package service связывает движок журнала с хранилищем: восстанавливает движок из снимка,
// выполняет одну операцию и сохраняет новый снимок.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/clinic-ledger/internal/ledger"
	"github.com/mmeshcher/clinic-ledger/internal/lock"
	"github.com/mmeshcher/clinic-ledger/internal/model"
)

// Repository описывает контракт хранения снимков журнала.
type Repository interface {
	Close() error
	LoadSnapshot(ctx context.Context) (model.Snapshot, error)
	SaveSnapshot(ctx context.Context, snap model.Snapshot) error
}

// Service выполняет операции журнала поверх хранилища.
type Service struct {
	repo       Repository
	locker     lock.Locker
	logger     *zap.Logger
	engineOpts []ledger.Option
}

// NewService создаёт сервис. Все изменения журнала выполняются под locker.
func NewService(repo Repository, locker lock.Locker, logger *zap.Logger, opts ...ledger.Option) *Service {
	return &Service{
		repo:       repo,
		locker:     locker,
		logger:     logger,
		engineOpts: opts,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Seed сохраняет начальный снимок, если журнал пуст. Возвращает true, если снимок записан.
func (s *Service) Seed(ctx context.Context, snap model.Snapshot) (bool, error) {
	lockCtx, unlock, err := s.locker.Lock(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire writer lock: %w", err)
	}
	defer unlock()

	current, err := s.repo.LoadSnapshot(lockCtx)
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if len(current.Users) > 0 {
		return false, nil
	}

	if err := stillLocked(lockCtx); err != nil {
		return false, err
	}
	if err := s.repo.SaveSnapshot(lockCtx, snap); err != nil {
		return false, fmt.Errorf("save snapshot: %w", err)
	}
	return true, nil
}

func (s *Service) mutate(ctx context.Context, op string, fn func(e *ledger.Engine) (*ledger.Result, error)) (*ledger.Result, error) {
	lockCtx, unlock, err := s.locker.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire writer lock: %w", err)
	}
	defer unlock()

	snap, err := s.repo.LoadSnapshot(lockCtx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	res, err := fn(ledger.New(snap, s.engineOpts...))
	if err != nil {
		if ledger.IsRejection(err) {
			s.logger.Debug("operation rejected", zap.String("op", op), zap.Error(err))
		}
		return nil, err
	}

	if err := stillLocked(lockCtx); err != nil {
		return nil, err
	}
	if err := s.repo.SaveSnapshot(lockCtx, res.Snapshot); err != nil {
		if cause := context.Cause(lockCtx); errors.Is(cause, lock.ErrLeaseLost) {
			return nil, fmt.Errorf("save snapshot: %w", cause)
		}
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	if tc := res.TierChange; tc != nil {
		s.logger.Info("tier upgraded",
			zap.String("userID", tc.UserID),
			zap.String("from", string(tc.From)),
			zap.String("to", string(tc.To)),
		)
	}

	return res, nil
}

// stillLocked не даёт сохранить снимок, если блокировка записи уже потеряна.
func stillLocked(lockCtx context.Context) error {
	if lockCtx.Err() != nil {
		return fmt.Errorf("writer lock: %w", context.Cause(lockCtx))
	}
	return nil
}

func (s *Service) view(ctx context.Context) (*ledger.Engine, error) {
	snap, err := s.repo.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return ledger.New(snap, s.engineOpts...), nil
}

// RegisterPatient регистрирует нового пациента.
func (s *Service) RegisterPatient(ctx context.Context, name, mobile string) (*ledger.Result, error) {
	res, err := s.mutate(ctx, "register", func(e *ledger.Engine) (*ledger.Result, error) {
		return e.RegisterPatient(name, mobile)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("patient registered", zap.String("userID", res.User.ID))
	return res, nil
}

// ProcessTransaction начисляет или списывает баллы пациента.
func (s *Service) ProcessTransaction(ctx context.Context, patientID string, amount float64, category model.Category, txType model.TransactionType) (*ledger.Result, error) {
	res, err := s.mutate(ctx, "transaction", func(e *ledger.Engine) (*ledger.Result, error) {
		return e.ProcessTransaction(patientID, amount, category, txType)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction processed",
		zap.String("patientID", patientID),
		zap.String("type", string(txType)),
		zap.String("category", string(category)),
		zap.String("walletID", res.Transaction.WalletID),
		zap.Int64("points", res.Transaction.PointsEarned),
	)
	return res, nil
}

// LinkFamilyMember присоединяет пациента к семье главы.
func (s *Service) LinkFamilyMember(ctx context.Context, headUserID, memberMobile string) (*ledger.Result, error) {
	res, err := s.mutate(ctx, "link", func(e *ledger.Engine) (*ledger.Result, error) {
		return e.LinkFamilyMember(headUserID, memberMobile)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("family member linked",
		zap.String("headUserID", headUserID),
		zap.Int64("transferredPoints", res.Transferred),
		zap.Int("migratedTransactions", res.Migrated),
	)
	return res, nil
}

// Snapshot возвращает текущее состояние журнала.
func (s *Service) Snapshot(ctx context.Context) (model.Snapshot, error) {
	e, err := s.view(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	return e.Snapshot(), nil
}

// DashboardStats возвращает показатели панели клиники.
func (s *Service) DashboardStats(ctx context.Context) (model.DashboardStats, error) {
	e, err := s.view(ctx)
	if err != nil {
		return model.DashboardStats{}, err
	}
	return e.DashboardStats(), nil
}

// SearchPatients ищет пациентов по имени или номеру телефона.
func (s *Service) SearchPatients(ctx context.Context, query string) ([]model.User, error) {
	e, err := s.view(ctx)
	if err != nil {
		return nil, err
	}
	return e.SearchPatients(query), nil
}

// FindByMobile возвращает пользователя по номеру телефона.
func (s *Service) FindByMobile(ctx context.Context, mobile string) (model.User, error) {
	e, err := s.view(ctx)
	if err != nil {
		return model.User{}, err
	}
	return e.FindByMobile(mobile)
}

// PatientOverview возвращает сводку по пациенту.
func (s *Service) PatientOverview(ctx context.Context, userID string) (*model.PatientOverview, error) {
	e, err := s.view(ctx)
	if err != nil {
		return nil, err
	}
	return e.PatientOverview(userID)
}

// DailyActivity возвращает движение баллов пациента по дням.
func (s *Service) DailyActivity(ctx context.Context, userID string, days int) ([]model.DailyActivity, error) {
	e, err := s.view(ctx)
	if err != nil {
		return nil, err
	}
	return e.DailyActivity(userID, days)
}
