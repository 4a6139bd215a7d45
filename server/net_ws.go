package server

import (
	"net/http"
	"sync"
	"time"

	"cubearena/protocol"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	maxFrame   = 1 << 20 // 1MB
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws      *websocket.Conn
	send    chan []byte
	msgType int
	once    sync.Once
}

func NewClientConn(ws *websocket.Conn, queueSize int, binary bool) *ClientConn {
	mt := websocket.TextMessage
	if binary {
		mt = websocket.BinaryMessage
	}
	return &ClientConn{
		ws:      ws,
		send:    make(chan []byte, queueSize),
		msgType: mt,
	}
}

// Send 将要发送的消息压入队列（非阻塞，满则丢弃并返回 false）
func (c *ClientConn) Send(b []byte) bool {
	select {
	case c.send <- b:
		return true
	default:
		// 为了实时性，丢弃该条消息，不阻塞事件循环
		return false
	}
}

// Close 关闭发送队列，写协程随之退出并关闭底层连接。只由 Hub 调用。
func (c *ClientConn) Close() {
	c.once.Do(func() { close(c.send) })
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期发送 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(c.msgType, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端帧并投递给 Hub；退出时通知 Hub 移除该连接
func (c *ClientConn) readPump(h *Hub, id PlayerID) {
	defer func() {
		h.Post(Disconnect{ID: id})
		_ = c.ws.Close()
	}()
	c.ws.SetReadLimit(maxFrame)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debugf("read %s: %v", id, err)
			}
			return
		}
		if !h.Post(Frame{ID: id, Data: payload}) {
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：/ws?codec=json|msgpack[&arena=x&name=alice]
// 带 arena 参数时连接建立后自动加入该竞技场
func HandleWS(h *Hub, queueSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		codec := protocol.CodecByName(q.Get("codec"))

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warnf("upgrade error: %v", err)
			return
		}

		id := NewPlayerID()
		client := NewClientConn(ws, queueSize, codec.Binary())
		if !h.Post(Connect{ID: id, Conn: client, Codec: codec}) {
			_ = ws.Close()
			return
		}
		if arena := q.Get("arena"); arena != "" {
			join, err := codec.Encode(protocol.EvJoinArena, protocol.JoinArena{Arena: arena, Name: q.Get("name")})
			if err == nil {
				h.Post(Frame{ID: id, Data: join})
			}
		}

		go client.writePump()
		go client.readPump(h, id)
	}
}
