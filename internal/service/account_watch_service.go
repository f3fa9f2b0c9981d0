package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"pda-client-sol/internal/cache"
	"pda-client-sol/internal/config"
	"pda-client-sol/internal/logic/account"
	"pda-client-sol/internal/pkg/logger"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"

	"golang.org/x/sync/errgroup"
)

const (
	defaultWatchInterval = 10 * time.Second
	fetchTimeout         = 5 * time.Second
	fetchConcurrency     = 8
)

// AccountWatchService 周期性读取一组账户，把快照写入缓存并在状态变化时回调
type AccountWatchService struct {
	cache     *cache.AccountCache
	reader    *account.Reader
	transport transport.Transport
	interval  time.Duration
	stopChan  chan struct{}
	ctx       context.Context
	cancel    func(err error)
	accounts  []types.Pubkey
	onChange  func(addr types.Pubkey, snap cache.AccountSnapshot)
}

func NewAccountWatchService(cfg *config.WatchConfig, t transport.Transport, c *cache.AccountCache, onChange func(types.Pubkey, cache.AccountSnapshot)) (*AccountWatchService, error) {
	if len(cfg.Accounts) == 0 {
		return nil, errors.New("no accounts to watch")
	}
	accounts := make([]types.Pubkey, 0, len(cfg.Accounts))
	for _, s := range cfg.Accounts {
		pk, err := types.TryPubkeyFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("invalid watch account %q: %w", s, err)
		}
		accounts = append(accounts, pk)
	}

	interval := time.Duration(cfg.IntervalS) * time.Second
	if interval <= 0 {
		interval = defaultWatchInterval
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	s := &AccountWatchService{
		cache:     c,
		reader:    account.NewReader(t),
		transport: t,
		interval:  interval,
		stopChan:  make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		accounts:  accounts,
		onChange:  onChange,
	}

	// 初始化
	const retryCount = 3
	for i := 0; i <= retryCount; i++ {
		if err := s.update(); err != nil {
			logger.Warnf("[AccountWatchService] 第 %d 次 update() 失败: %v", i+1, err)
		} else {
			logger.Infof("[AccountWatchService] 初始快照同步成功, 账户数: %d", len(accounts))
			return s, nil
		}
		time.Sleep(2 * time.Second)
	}
	cancel(errors.New("initial sync failed"))
	return nil, fmt.Errorf("[AccountWatchService] 初始同步失败")
}

func (s *AccountWatchService) Start() {
	s.scheduleNext()
	<-s.stopChan
}

func (s *AccountWatchService) scheduleNext() {
	time.AfterFunc(s.interval, func() {
		if err := s.update(); err != nil {
			logger.Warnf("[AccountWatchService] 周期性更新失败: %v", err)
		}
		// 如果没有被 Stop，就继续调度
		select {
		case <-s.ctx.Done():
			return
		default:
			s.scheduleNext()
		}
	})
}

func (s *AccountWatchService) Stop() {
	s.cancel(errors.New("AccountWatchService stop"))
	select {
	case <-s.stopChan:
		// 已关闭，无需重复关闭
	default:
		close(s.stopChan)
	}
}

func (s *AccountWatchService) update() (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[AccountWatchService] update panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("update panic: %v", r)
		}
	}()

	snapshots, err := s.fetchAccounts()
	if err != nil {
		return err
	}
	for _, addr := range s.cache.Insert(snapshots) {
		snap := snapshots[addr]
		if snap.Missing {
			logger.Infof("[AccountWatchService] %s: 账户不存在 (height=%d)", addr, snap.Height)
		} else {
			logger.Infof("[AccountWatchService] %s: lamports=%d owner=%s len=%d (height=%d)", addr, snap.Lamports, snap.Owner, len(snap.Data), snap.Height)
		}
		if s.onChange != nil {
			s.onChange(addr, snap)
		}
	}
	return nil
}

func (s *AccountWatchService) fetchAccounts() (map[types.Pubkey]cache.AccountSnapshot, error) {
	ctx, cancel := context.WithTimeout(s.ctx, fetchTimeout)
	defer cancel()

	start := time.Now()
	height, err := s.transport.GetBlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetBlockHeight failed: %w", err)
	}

	snaps := make([]cache.AccountSnapshot, len(s.accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, addr := range s.accounts {
		g.Go(func() error {
			info, err := s.reader.Info(gctx, addr)
			switch {
			case errors.Is(err, account.ErrAccountNotFound):
				snaps[i] = cache.AccountSnapshot{Height: height, Missing: true}
			case err != nil:
				return fmt.Errorf("read %s: %w", addr, err)
			default:
				snaps[i] = cache.AccountSnapshot{Height: height, Lamports: info.Lamports, Owner: info.Owner, Data: info.Data}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.Debugf("[AccountWatchService] 读取完成, 账户数: %d, 耗时: %v", len(s.accounts), time.Since(start))

	result := make(map[types.Pubkey]cache.AccountSnapshot, len(s.accounts))
	for i, addr := range s.accounts {
		result[addr] = snaps[i]
	}
	return result, nil
}
