// Package wallet 在会话开始前校验用户钱包余额前置条件。
package wallet

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
)

// ErrInsufficientBalance 钱包余额低于车辆类别对应的最低要求
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

// BalanceStore 余额查询。账户不存在时返回 (0, nil)。
type BalanceStore interface {
	Balance(ctx context.Context, ownerID string) (float64, error)
}

// Guard 余额守卫：按车辆类别对照最低余额
type Guard struct {
	store      BalanceStore
	minByClass map[coremodel.VehicleClass]float64
	log        *zap.Logger
}

// NewGuard 创建余额守卫
func NewGuard(store BalanceStore, minTwoWheeler, minFourWheeler float64, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{
		store: store,
		minByClass: map[coremodel.VehicleClass]float64{
			coremodel.VehicleClassTwoWheeler:  minTwoWheeler,
			coremodel.VehicleClassFourWheeler: minFourWheeler,
		},
		log: log,
	}
}

// Ensure 校验余额满足最低要求，不满足返回 ErrInsufficientBalance
func (g *Guard) Ensure(ctx context.Context, userID coremodel.UserID, class coremodel.VehicleClass) error {
	min := g.minByClass[class]

	balance, err := g.store.Balance(ctx, string(userID))
	if err != nil {
		return fmt.Errorf("query wallet balance: %w", err)
	}
	if balance < min {
		g.log.Info("wallet below minimum",
			zap.String("user_id", string(userID)),
			zap.String("vehicle_class", string(class)),
			zap.Float64("balance", balance),
			zap.Float64("required", min))
		return ErrInsufficientBalance
	}
	return nil
}
