package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// streamSSE 把一个订阅通道渲染成 SSE 流：
// - 连接建立后立刻发一行注释确认流已打开
// - 之后每条通知一帧：`data: <json>\n\n`（信封字段是 camelCase）
// - select 同时盯着订阅通道和请求取消；任何退出路径都会执行 cancel 退订
func streamSSE[T any](c *gin.Context, comment string, sub <-chan T, cancel func()) {
	defer cancel()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
	c.Writer.WriteHeader(http.StatusOK)

	fmt.Fprintf(c.Writer, ": %s\n\n", comment)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			// 客户端断开：deferred cancel 退订；断线重连属于预期行为，
			// 重连会走一次全新的 Subscribe，不会留下重复注册
			return
		case n, ok := <-sub:
			if !ok {
				return
			}
			b, err := json.Marshal(n)
			if err != nil {
				log.Printf("marshal sse notification error: %v", err)
				continue
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", b)
			c.Writer.Flush()
		}
	}
}
