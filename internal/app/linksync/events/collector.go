package events

import "time"

// 生命周期事件类型
const (
	KindPublished  = "published"   // 状态迁移到已发布
	KindInserted   = "inserted"    // 插入/更新（可能已发布）
	KindVisited    = "visited"     // 前台访问
	KindDeleted    = "deleted"     // 删除
	KindTrashed    = "trashed"     // 移入回收站
	KindUntrashed  = "untrashed"   // 移出回收站
	KindBulkDelete = "bulk_delete" // 后台批量删除
	KindRESTDelete = "rest_delete" // REST 删除
)

// Event 是一条内容生命周期事件
type Event struct {
	ItemID     int64     `json:"item_id"`
	Kind       string    `json:"kind"`
	Type       string    `json:"type"`      // 内容类型（post/page/...），投递方可不带
	Status     string    `json:"status"`    // 当前状态，投递方可不带
	Permalink  string    `json:"permalink"` // 当前长链接，投递方可不带
	OccurredAt time.Time `json:"occurred_at"`
}

// Collector 收集器接口（方便 channel / Kafka 互换）
type Collector interface {
	Collect(event Event)
	Close()
}

// ChannelCollector 基于 channel 的收集器
type ChannelCollector struct {
	ch     chan Event
	closed bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{
		ch:     make(chan Event, bufferSize),
		closed: false,
	}
}

// Collect 通道满了直接丢弃：生命周期事件是提示不是指令，
// 丢掉的创建会被下一次访问兜底，丢掉的删除会在下次删除信号补上。
func (c *ChannelCollector) Collect(event Event) {
	if c.closed {
		return
	}
	select {
	case c.ch <- event:
	default:
	}
}

func (c *ChannelCollector) Events() <-chan Event {
	return c.ch
}

func (c *ChannelCollector) Close() {
	c.closed = true
	close(c.ch)
}
