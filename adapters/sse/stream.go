package sse

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HeadersMiddleware 設置 SSE 所需的回應標頭
func HeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")
		c.Next()
	}
}

// Stream 將指定商品的事件以 SSE 推送給客戶端，直到連線中斷或 Hub 關閉。
// 沒有事件時每隔 keepAlive 送出一次 ping，避免代理伺服器切斷閒置連線。
func (h *Hub) Stream(c *gin.Context, productID string, keepAlive time.Duration) {
	events, err := h.Subscribe(productID)
	if err != nil {
		c.AbortWithStatus(503)
		return
	}
	defer h.Unsubscribe(productID, events)

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	c.Status(200)
	c.Writer.Flush()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			c.Writer.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(string(event.Type), event)
			c.Writer.Flush()
		}
	}
}
