package redis

import (
	"context"
)

// IProducer 定義了 Producer 的操作介面
type IProducer[T any] interface {
	Start()
	Publish(data T) error
	Close()
}

// IConsumer 定義了 Consumer 的操作介面
type IConsumer[T any] interface {
	Start()
	Subscribe() <-chan T
	Close()
}

// ISweepLock 定義了跨實例排程鎖的操作介面
type ISweepLock interface {
	TryLock(ctx context.Context) (context.Context, func(), error)
}
