package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/billing"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
)

// HandleTelemetry 处理一条已解码的遥测样本。
// 解析不到会话的样本只记审计与日志后丢弃，不是错误。
// 同一会话（等价于同一设备）的样本在条目锁内串行处理，
// 保证增量计算依赖的上一读数基线不被并发打乱。
func (r *Registry) HandleTelemetry(ctx context.Context, sample *coremodel.TelemetrySample) {
	if sample.ReceivedAt.IsZero() {
		sample.ReceivedAt = r.now()
	}

	e, ok := r.resolve(ctx, sample)
	if !ok {
		r.observer.Record("telemetry", "orphan")
		if err := r.telemetry.AppendTelemetry(ctx, nil, sample); err != nil {
			r.log.Debug("append orphan telemetry failed", zap.Error(err))
		}
		r.log.Debug("telemetry without known session dropped",
			zap.String("device_id", string(sample.DeviceID)),
			zap.String("report", sample.Report.String()))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sess := e.sess

	// 审计流水独立于状态变化，始终落盘
	sid := sess.ID
	if err := r.telemetry.AppendTelemetry(ctx, &sid, sample); err != nil {
		r.observer.Record("persist", "failed")
		r.log.Warn("append telemetry failed",
			zap.String("session_id", string(sid)), zap.Error(err))
	}

	if sess.Terminal() {
		// 终态会话不可复活，重复的 final/停止信号在此吸收
		r.observer.Record("telemetry", "terminal")
		return
	}

	t := sample.ReceivedAt
	sess.LastTelemetryAt = &t
	r.observer.Record("telemetry", "ok")

	switch sample.Report {
	case coremodel.ReportStart:
		if sess.Status == coremodel.SessionStatusPending && sample.DeviceStatus == coremodel.DeviceStatusRunning {
			sess.Status = coremodel.SessionStatusActive
			r.observer.Record("session", "activated")
			r.log.Info("session activated",
				zap.String("session_id", string(sess.ID)),
				zap.String("device_id", string(sess.DeviceID)))
		}
		r.applyBilling(sess, sample)
		if sample.DeviceStatus == coremodel.DeviceStatusStopped {
			r.stopLocked(ctx, sess, coremodel.CloseReasonDeviceStop, sample)
			return
		}
		r.persistBestEffort(ctx, sess)
		r.events.SessionUpdated(ctx, sess.Clone())

	case coremodel.ReportInterim:
		r.applyBilling(sess, sample)
		if sample.DeviceStatus == coremodel.DeviceStatusStopped {
			r.stopLocked(ctx, sess, coremodel.CloseReasonDeviceStop, sample)
			return
		}
		r.persistBestEffort(ctx, sess)
		r.events.SessionUpdated(ctx, sess.Clone())

	case coremodel.ReportFinal:
		r.applyBilling(sess, sample)
		r.stopLocked(ctx, sess, coremodel.CloseReasonDeviceStop, sample)
		return

	case coremodel.ReportAmbient:
		// 空闲心跳不计费；但携带停止状态的样本先结算读数再终结
		if sample.DeviceStatus == coremodel.DeviceStatusStopped {
			r.applyBilling(sess, sample)
			r.stopLocked(ctx, sess, coremodel.CloseReasonDeviceStop, sample)
			return
		}
		r.persistBestEffort(ctx, sess)
	}

	r.events.DeviceTelemetry(ctx, sess.Clone(), sample)
}

// Stop 显式停止会话，幂等：终态会话原样返回快照。
func (r *Registry) Stop(ctx context.Context, id coremodel.SessionID, reason coremodel.CloseReason, sample *coremodel.TelemetrySample) (*coremodel.Session, error) {
	e := r.lookupByID(id)
	if e == nil {
		e = r.adoptFromStore(ctx, id)
	}
	if e == nil {
		// 不在内存且未被装载：要么不存在，要么已是终态
		s, err := r.store.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, ErrNotFound
		}
		return s, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	r.stopLocked(ctx, e.sess, reason, sample)
	return e.sess.Clone(), nil
}

// ForceStop 管理员强制停止：先向设备下发零时长停止命令，
// 无论设备是否应答都立即终结会话。用于设备失联场景。
func (r *Registry) ForceStop(ctx context.Context, id coremodel.SessionID) (*coremodel.Session, error) {
	snap, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if r.commander != nil {
		if err := r.commander.TurnOff(ctx, snap.DeviceID, 0, id); err != nil {
			r.observer.Record("command", "failed")
			r.log.Warn("force-stop command publish failed",
				zap.String("session_id", string(id)),
				zap.String("device_id", string(snap.DeviceID)),
				zap.Error(err))
		}
	}
	return r.Stop(ctx, id, coremodel.CloseReasonForceStop, nil)
}

// resolve 按 显式会话ID > 内存设备索引 > 外部缓存 的顺序解析归属会话
func (r *Registry) resolve(ctx context.Context, sample *coremodel.TelemetrySample) (*entry, bool) {
	if sample.SessionID != nil && *sample.SessionID != "" {
		if e := r.lookupByID(*sample.SessionID); e != nil {
			return e, true
		}
		if e := r.adoptFromStore(ctx, *sample.SessionID); e != nil {
			return e, true
		}
		return nil, false
	}

	if e := r.lookupByDevice(sample.DeviceID); e != nil {
		return e, true
	}

	// 缓存兜底：覆盖进程重启后缓存仍温热的场景
	sid, ok, err := r.cache.GetActive(ctx, sample.DeviceID)
	if err != nil {
		r.log.Debug("cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if e := r.lookupByID(sid); e != nil {
		return e, true
	}
	if e := r.adoptFromStore(ctx, sid); e != nil {
		return e, true
	}
	return nil, false
}

// applyBilling 推进计费累计并上报回退观测
func (r *Registry) applyBilling(sess *coremodel.Session, sample *coremodel.TelemetrySample) {
	acc := billing.Apply(sess, sample)
	if acc.Rollback {
		r.observer.Record("billing", "rollback")
		r.log.Warn("device counter rollback clamped",
			zap.String("session_id", string(sess.ID)),
			zap.String("device_id", string(sess.DeviceID)))
	}
}

// persistBestEffort 会话状态写入失败只记日志，不回滚内存状态
func (r *Registry) persistBestEffort(ctx context.Context, sess *coremodel.Session) {
	if err := r.store.SaveSession(ctx, sess); err != nil {
		r.observer.Record("persist", "failed")
		r.log.Warn("persist session failed",
			zap.String("session_id", string(sess.ID)), zap.Error(err))
	}
}

// stopLocked 终结会话。调用方必须持有条目锁。幂等。
func (r *Registry) stopLocked(ctx context.Context, sess *coremodel.Session, reason coremodel.CloseReason, sample *coremodel.TelemetrySample) {
	if sess.Terminal() {
		return
	}

	now := r.now()
	sess.Status = coremodel.SessionStatusStopped
	sess.EndedAt = &now
	if sample != nil && sample.Illegal != nil && *sample.Illegal {
		sess.Illegal = true
	}

	// 关闭原因按优先级归一：窃电 > 强停 > 设备停止 > 正常
	switch {
	case sess.Illegal:
		sess.CloseReason = coremodel.CloseReasonIllegal
	case reason == coremodel.CloseReasonForceStop:
		sess.CloseReason = coremodel.CloseReasonForceStop
	case reason == coremodel.CloseReasonDeviceStop:
		sess.CloseReason = coremodel.CloseReasonDeviceStop
	default:
		sess.CloseReason = coremodel.CloseReasonNormal
	}

	// 终态条目整体出内存：byID 不清理会随会话量无界增长。
	// 迟到的重复 final/Stop 经 adoptFromStore 或持久层路径吸收。
	r.mu.Lock()
	delete(r.byID, sess.ID)
	if sid, ok := r.byDevice[sess.DeviceID]; ok && sid == sess.ID {
		delete(r.byDevice, sess.DeviceID)
	}
	r.mu.Unlock()

	if err := r.cache.DeleteActive(ctx, sess.DeviceID); err != nil {
		r.log.Debug("cache invalidate failed", zap.Error(err))
	}

	// 终态必须尽力落盘；失败记 error 级日志等待对账
	if err := r.store.SaveSession(ctx, sess); err != nil {
		r.observer.Record("persist", "failed")
		r.log.Error("persist stopped session failed",
			zap.String("session_id", string(sess.ID)), zap.Error(err))
	}

	r.writeLedger(ctx, sess)

	if err := r.bookings.Complete(ctx, sess.BookingID); err != nil {
		r.log.Warn("complete booking failed",
			zap.String("session_id", string(sess.ID)), zap.Error(err))
	}

	r.observer.Record("session", "stopped")
	r.log.Info("session stopped",
		zap.String("session_id", string(sess.ID)),
		zap.String("device_id", string(sess.DeviceID)),
		zap.String("close_reason", string(sess.CloseReason)),
		zap.Float64("energy_kwh", sess.EnergyKWh),
		zap.Float64("amount", sess.Amount))
	r.events.SessionStopped(ctx, sess.Clone())
}

// writeLedger 账本写入：钱包扣款 + 运营商入账。
// 存储层以 (session_id, kind) 唯一约束保证至多一次；
// 失败记 error 并计入观测，留待对账任务补偿。
func (r *Registry) writeLedger(ctx context.Context, sess *coremodel.Session) {
	if err := r.ledger.RecordWalletDebit(ctx, sess); err != nil {
		r.observer.Record("ledger", "debit_failed")
		r.log.Error("wallet debit write failed",
			zap.String("session_id", string(sess.ID)), zap.Error(err))
	} else {
		r.observer.Record("ledger", "debit_ok")
	}

	if err := r.ledger.RecordVendorCredit(ctx, sess); err != nil {
		r.observer.Record("ledger", "credit_failed")
		r.log.Error("vendor credit write failed",
			zap.String("session_id", string(sess.ID)), zap.Error(err))
	} else {
		r.observer.Record("ledger", "credit_ok")
	}
}
