package cache

import (
	"bytes"
	"sort"
	"sync"

	"pda-client-sol/internal/pkg/types"
)

// AccountSnapshot 某一区块高度观察到的账户状态
type AccountSnapshot struct {
	Height   uint64
	Lamports uint64
	Owner    types.Pubkey
	Data     []byte
	Missing  bool // 账户不存在
}

func (s AccountSnapshot) sameState(o AccountSnapshot) bool {
	return s.Missing == o.Missing && s.Lamports == o.Lamports && s.Owner == o.Owner && bytes.Equal(s.Data, o.Data)
}

const (
	maxCapacity = 400
	retainCount = 300
)

type AccountCache struct {
	mu      sync.RWMutex
	history map[types.Pubkey][]AccountSnapshot // 按高度升序
}

func NewAccountCache() *AccountCache {
	return &AccountCache{
		history: make(map[types.Pubkey][]AccountSnapshot),
	}
}

// Insert 写入一批快照，返回状态相对前一个快照发生变化的账户
func (c *AccountCache) Insert(snapshots map[types.Pubkey]AccountSnapshot) []types.Pubkey {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changed []types.Pubkey
	for addr, snap := range snapshots {
		points, ok := c.history[addr]
		if !ok {
			points = make([]AccountSnapshot, 0, maxCapacity)
			c.history[addr] = append(points, snap)
			changed = append(changed, addr)
			continue
		}

		if len(points) >= maxCapacity {
			// 将后半段复制到前半段，截断为 retainCount 长度
			copy(points[:retainCount], points[len(points)-retainCount:])
			points = points[:retainCount]
			c.history[addr] = points
		}

		// 顺序插入优化
		last := points[len(points)-1]
		if snap.Height == last.Height {
			// 同一高度内状态仍可能变化（高度只代表读取时刻），以新读到的为准
			if !snap.sameState(last) {
				points[len(points)-1] = snap
				changed = append(changed, addr)
			}
			continue
		}
		if snap.Height > last.Height {
			if !snap.sameState(last) {
				changed = append(changed, addr)
			}
			c.history[addr] = append(points, snap)
			continue
		}

		// 乱序到达的旧快照插入到中间，不视为变化
		idx := sort.Search(len(points), func(i int) bool {
			return points[i].Height >= snap.Height
		})
		if idx < len(points) && points[idx].Height == snap.Height {
			continue
		}
		points = append(points, AccountSnapshot{})
		copy(points[idx+1:], points[idx:])
		points[idx] = snap
		c.history[addr] = points
	}

	sort.Slice(changed, func(i, j int) bool {
		return bytes.Compare(changed[i][:], changed[j][:]) < 0
	})
	return changed
}

// Latest 最新快照
func (c *AccountCache) Latest(addr types.Pubkey) (AccountSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.history[addr]
	if len(points) == 0 {
		return AccountSnapshot{}, false
	}
	return points[len(points)-1], true
}

// At 返回 height 时刻的状态：height 之前（含）最近的一个快照
func (c *AccountCache) At(addr types.Pubkey, height uint64) (AccountSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.history[addr]
	if len(points) == 0 || height < points[0].Height {
		return AccountSnapshot{}, false
	}
	idx := sort.Search(len(points), func(i int) bool {
		return points[i].Height > height
	})
	return points[idx-1], true
}

func (c *AccountCache) Len(addr types.Pubkey) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history[addr])
}
